package push

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/version"
)

// WebhookBody is the JSON document posted to every endpoint.
type WebhookBody struct {
	Event      string                      `json:"event"`
	ByStaff    bool                        `json:"by_staff"`
	RawMessage string                      `json:"raw_message"`
	Ticket     *models.NotificationPayload `json:"ticket"`
	SentAt     time.Time                   `json:"sent_at"`
}

// Webhook posts reply events as signed JSON.
type Webhook struct {
	endpoints []string
	secret    string
	headers   map[string]string
	client    *http.Client
	now       func() time.Time
}

func NewWebhook(cfg config.WebhookConfig, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{
		endpoints: cfg.Endpoints,
		secret:    cfg.Secret,
		headers:   cfg.Headers,
		client:    client,
		now:       time.Now,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Push(ctx context.Context, ev Event) error {
	body, err := json.Marshal(WebhookBody{
		Event:      ev.Tag,
		ByStaff:    ev.ByStaff,
		RawMessage: ev.RawMessage,
		Ticket:     ev.Payload,
		SentAt:     w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	delivery := uuid.NewString()
	var errs []error
	for _, url := range w.endpoints {
		if err := w.deliver(ctx, url, ev.Tag, delivery, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Webhook) deliver(ctx context.Context, url, event, delivery string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("webhook"))
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Delivery", delivery)
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}
	if w.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// Sign returns the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
