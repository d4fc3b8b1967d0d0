package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// GatewayStatus is the provider's collection status.
type GatewayStatus string

const (
	GatewayPending     GatewayStatus = "pending"
	GatewayOTPRequired GatewayStatus = "otp-required"
	GatewayPayOffline  GatewayStatus = "pay-offline"
	GatewaySuccessful  GatewayStatus = "successful"
	GatewayFailed      GatewayStatus = "failed"
	GatewayUnknown     GatewayStatus = "unknown"
)

func ParseGatewayStatus(s string) GatewayStatus {
	switch GatewayStatus(s) {
	case GatewayPending, GatewayOTPRequired, GatewayPayOffline, GatewaySuccessful, GatewayFailed:
		return GatewayStatus(s)
	}
	return GatewayUnknown
}

type ChargeRequest struct {
	Amount    decimal.Decimal
	Phone     string
	Currency  string
	Operator  MobileOperator
	Reference string
}

// GatewayResult is one interpreted provider response. RawStatus keeps the
// provider's own status string when Status is GatewayUnknown. Raw always holds
// a JSON document, normalized when the provider sent something else.
type GatewayResult struct {
	Status            GatewayStatus   `json:"status"`
	RawStatus         string          `json:"rawStatus,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	ProviderReference string          `json:"providerReference,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Message           string          `json:"message,omitempty"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// PaymentReference is the identifier later OTP and status calls must use.
func (r GatewayResult) PaymentReference() string {
	if r.ProviderReference != "" {
		return r.ProviderReference
	}
	return r.Reference
}
