package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-backend/internal/domain"
)

// WebhookSender posts SMS messages to an HTTP gateway.
type WebhookSender struct {
	URL    string
	Token  string
	Client *http.Client
}

func NewWebhookSender(url, token string) *WebhookSender {
	return &WebhookSender{URL: url, Token: token, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *WebhookSender) Name() string { return "webhook" }

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
	Event   string `json:"event"`
}

func (s *WebhookSender) Send(ctx context.Context, m domain.Message) error {
	body, err := json.Marshal(smsPayload{To: m.To, Message: m.Body, OrderID: m.OrderID, Event: m.Event})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sms webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
