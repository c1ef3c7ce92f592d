package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookSender posts fare deal events to a generic HTTP endpoint.
type WebhookSender struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhookSender creates a generic webhook sender.
// If secret is non-empty, the body is signed with HMAC-SHA256.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookSender) Name() string { return "webhook" }

// Send posts one fare_deal event. Each call carries a fresh Idempotency-Key
// that receivers can use to drop replays.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	event := newFareDealEvent(msg, w.now())

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal fare deal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Fare-Guardian/1.0")
	req.Header.Set("Idempotency-Key", event.DeliveryID)
	if w.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+signBody(body, []byte(w.secret)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post fare deal for alert %s: %w", msg.AlertID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook rejected fare deal for alert %s: status %d: %s",
			msg.AlertID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// fareDealEvent is the webhook body. Route data sits at the top level so
// receivers can filter without parsing the rendered text.
type fareDealEvent struct {
	Event       string            `json:"event"`
	DeliveryID  string            `json:"delivery_id"`
	SentAt      string            `json:"sent_at"`
	AlertID     string            `json:"alert_id"`
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	DealCount   int               `json:"deal_count"`
	LowestPrice string            `json:"lowest_price,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	Summary     string            `json:"summary"`
	Details     map[string]string `json:"details,omitempty"`
	Text        string            `json:"text"`
}

func newFareDealEvent(msg Message, at time.Time) fareDealEvent {
	origin, destination, _ := strings.Cut(msg.Route, "-")

	var details map[string]string
	if len(msg.Fields) > 0 {
		details = make(map[string]string, len(msg.Fields))
		for _, f := range msg.Fields {
			details[f.Title] = f.Value
		}
	}

	return fareDealEvent{
		Event:       "fare_deal",
		DeliveryID:  uuid.NewString(),
		SentAt:      at.UTC().Format(time.RFC3339),
		AlertID:     msg.AlertID,
		Origin:      origin,
		Destination: destination,
		DealCount:   msg.DealCount,
		LowestPrice: msg.LowestPrice,
		Currency:    msg.Currency,
		Summary:     msg.Subject,
		Details:     details,
		Text:        msg.Text,
	}
}

func signBody(body, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
