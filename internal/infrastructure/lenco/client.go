// Package lenco talks to the Lenco mobile-money collections API.
package lenco

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-backend/internal/domain"
)

const (
	OpCharge = "charge"
	OpOTP    = "submit_otp"
	OpStatus = "status"
)

// Observer receives one call per gateway round trip.
type Observer interface {
	ObserveGateway(op, result string, d time.Duration)
}

type Client struct {
	BaseURL  string
	APIKey   string
	DialCode string
	Timeout  time.Duration
	HTTP     *http.Client
	Observer Observer
}

type chargeBody struct {
	Operator  string `json:"operator"`
	Bearer    string `json:"bearer"`
	Amount    string `json:"amount"`
	Phone     string `json:"phone"`
	Reference string `json:"reference"`
	Currency  string `json:"currency,omitempty"`
}

type otpBody struct {
	OTP                  string `json:"otp"`
	TransactionReference string `json:"transaction_reference"`
}

type envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    *collection `json:"data"`
}

type collection struct {
	ID               string `json:"id"`
	Reference        string `json:"reference"`
	LencoReference   string `json:"lencoReference"`
	Status           string `json:"status"`
	ReasonForFailure string `json:"reasonForFailure"`
}

func (c *Client) Charge(ctx context.Context, req domain.ChargeRequest) (domain.GatewayResult, error) {
	body := chargeBody{
		Operator:  string(domain.NormalizeOperator(string(req.Operator))),
		Bearer:    "merchant",
		Amount:    req.Amount.StringFixed(2),
		Phone:     NormalizePhone(req.Phone, c.dialCode()),
		Reference: req.Reference,
		Currency:  req.Currency,
	}
	return c.call(ctx, OpCharge, http.MethodPost, "/collections/mobile-money", body)
}

func (c *Client) SubmitOTP(ctx context.Context, otp, reference string) (domain.GatewayResult, error) {
	return c.call(ctx, OpOTP, http.MethodPost, "/collections/mobile-money/submit-otp", otpBody{
		OTP:                  otp,
		TransactionReference: reference,
	})
}

func (c *Client) CollectionStatus(ctx context.Context, reference string) (domain.GatewayResult, error) {
	return c.call(ctx, OpStatus, http.MethodGet, "/collections/status/"+url.PathEscape(reference), nil)
}

func (c *Client) call(ctx context.Context, op, method, path string, in any) (domain.GatewayResult, error) {
	start := time.Now()
	res, err := c.roundTrip(ctx, op, method, path, in)
	if c.Observer != nil {
		c.Observer.ObserveGateway(op, resultLabel(res, err), time.Since(start))
	}
	return res, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, in any) (domain.GatewayResult, error) {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return domain.GatewayResult{}, err
		}
		reader = bytes.NewReader(raw)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return domain.GatewayResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return transportFailure(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportFailure(op, err)
	}
	return interpret(op, resp.StatusCode, body)
}

// interpret turns one HTTP reply into a typed result. Non-2xx, non-JSON and
// status:false replies all become GatewayRejectedError with a JSON audit body.
func interpret(op string, code int, body []byte) (domain.GatewayResult, error) {
	var env envelope
	jsonErr := json.Unmarshal(body, &env)

	if code < 200 || code >= 300 {
		reason := http.StatusText(code)
		raw := json.RawMessage(body)
		if jsonErr == nil {
			if r := env.reason(); r != "" {
				reason = r
			}
		} else {
			if t := strings.TrimSpace(string(body)); t != "" {
				reason = t
			}
			raw = normalized(reason, code, string(body))
		}
		return domain.GatewayResult{Status: domain.GatewayFailed, Reason: reason, Raw: raw},
			&domain.GatewayRejectedError{Op: op, StatusCode: code, Reason: reason}
	}
	if jsonErr != nil {
		reason := "Invalid JSON response"
		return domain.GatewayResult{Status: domain.GatewayFailed, Reason: reason, Raw: normalized(reason, code, string(body))},
			&domain.GatewayRejectedError{Op: op, StatusCode: code, Reason: reason}
	}
	if !env.Status {
		reason := env.reason()
		if reason == "" {
			reason = "Payment processing failed"
		}
		return domain.GatewayResult{Status: domain.GatewayFailed, Reason: reason, Message: env.Message, Raw: body},
			&domain.GatewayRejectedError{Op: op, StatusCode: code, Reason: reason}
	}

	res := domain.GatewayResult{Message: env.Message, Raw: body, Status: domain.GatewayPending}
	if env.Data != nil {
		res.Reference = env.Data.Reference
		res.ProviderReference = env.Data.LencoReference
		res.Reason = env.Data.ReasonForFailure
		if env.Data.Status != "" {
			res.Status = domain.ParseGatewayStatus(env.Data.Status)
			res.RawStatus = env.Data.Status
		}
	}
	return res, nil
}

func (e envelope) reason() string {
	if e.Data != nil && e.Data.ReasonForFailure != "" {
		return e.Data.ReasonForFailure
	}
	return e.Message
}

func transportFailure(op string, err error) (domain.GatewayResult, error) {
	msg := err.Error()
	return domain.GatewayResult{Status: domain.GatewayFailed, Reason: msg, Raw: normalized(msg, 0, "")},
		&domain.GatewayTransportError{Op: op, Err: err}
}

func normalized(message string, code int, rawText string) json.RawMessage {
	doc := map[string]any{
		"status":  false,
		"message": message,
		"data":    nil,
	}
	if code != 0 {
		doc["httpStatus"] = code
	}
	if rawText != "" {
		doc["rawResponse"] = rawText
	}
	b, _ := json.Marshal(doc)
	return b
}

func resultLabel(res domain.GatewayResult, err error) string {
	var te *domain.GatewayTransportError
	switch {
	case errors.As(err, &te):
		return "transport_error"
	case err != nil:
		return "rejected"
	}
	return string(res.Status)
}

func (c *Client) url(path string) string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = "https://api.lenco.co/access/v2"
	}
	return strings.TrimRight(base, "/") + path
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: c.timeout()}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

func (c *Client) dialCode() string {
	if c.DialCode != "" {
		return c.DialCode
	}
	return "260"
}

// NormalizePhone keeps digits only, drops trunk and international zeros and
// makes sure the number starts with the dialing code:
// 0977123456 -> 260977123456, +260 977 123456 -> 260977123456.
func NormalizePhone(phone, dialCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" || strings.HasPrefix(digits, dialCode) {
		return digits
	}
	return dialCode + digits
}
