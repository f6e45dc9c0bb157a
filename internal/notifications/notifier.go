// Package notifications provides event alerting for AegisMask.
// It supports webhook and Slack transports, dispatching events like
// denied content and failed list reloads.
package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/mackeh/aegismask/internal/config"
)

// Event represents a notification event type.
type Event string

const (
	EventContentDenied    Event = "content_denied"
	EventContentReview    Event = "content_review"
	EventListReloadFailed Event = "list_reload_failed"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-AegisMask-Signature"

// sendTimeout bounds a single delivery; notifications outlive the request
// that triggered them.
const sendTimeout = 10 * time.Second

// Payload carries the notification data. It never includes filtered text.
type Payload struct {
	Event      Event          `json:"event"`
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id,omitempty"`
	List       string         `json:"list,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	MatchCount int            `json:"match_count,omitempty"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Notifier is the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, payload Payload) error
	Handles(event Event) bool
}

// Dispatcher fans out notifications to all registered notifiers.
type Dispatcher struct {
	notifiers []Notifier
	logger    *log.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher from configuration. Unknown channel
// types are logged and skipped.
func NewDispatcher(configs []config.NotificationConfig, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{logger: logger.WithPrefix("notify")}
	for _, cfg := range configs {
		events := make([]Event, len(cfg.Events))
		for i, e := range cfg.Events {
			events[i] = Event(e)
		}
		switch cfg.Type {
		case "webhook":
			d.Add(NewWebhookNotifier(cfg.URL, cfg.Secret, events))
		case "slack":
			d.Add(NewSlackNotifier(cfg.WebhookURL, events))
		default:
			d.logger.Warn("unknown notification type", "type", cfg.Type)
		}
	}
	return d
}

// Add registers a notifier.
func (d *Dispatcher) Add(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Len returns the number of registered notifiers.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.notifiers)
}

// Notify sends a payload to all notifiers that handle this event type. It
// does not block; delivery errors are logged.
func (d *Dispatcher) Notify(ctx context.Context, payload Payload) {
	if d == nil {
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	ctx = context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		if !n.Handles(payload.Event) {
			continue
		}
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := n.Send(sendCtx, payload); err != nil {
				d.logger.Warn("notification failed", "event", payload.Event, "err", err)
			}
		}(n)
	}
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// --- Webhook Notifier ---

// WebhookNotifier sends HMAC-signed HTTP POST payloads.
type WebhookNotifier struct {
	url    string
	secret string
	events map[Event]bool
	client *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(url, secret string, events []Event) *WebhookNotifier {
	m := make(map[Event]bool)
	for _, e := range events {
		m[e] = true
	}
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		events: m,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Handles returns true if this notifier is subscribed to the event.
func (w *WebhookNotifier) Handles(event Event) bool {
	return len(w.events) == 0 || w.events[event]
}

// Send dispatches the payload via HTTP POST with HMAC signature.
func (w *WebhookNotifier) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AegisMask-Notification/1.0")

	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, as sent in SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Slack Notifier ---

// SlackNotifier sends messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	events     map[Event]bool
	client     *http.Client
}

// NewSlackNotifier creates a new SlackNotifier.
func NewSlackNotifier(webhookURL string, events []Event) *SlackNotifier {
	m := make(map[Event]bool)
	for _, e := range events {
		m[e] = true
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		events:     m,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

// Handles returns true if this notifier is subscribed to the event.
func (s *SlackNotifier) Handles(event Event) bool {
	return len(s.events) == 0 || s.events[event]
}

// Send dispatches the notification as a Slack message.
func (s *SlackNotifier) Send(ctx context.Context, payload Payload) error {
	msg := formatSlackMessage(payload)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack: server returned %d", resp.StatusCode)
	}
	return nil
}

type slackMessage struct {
	Text string `json:"text"`
}

func formatSlackMessage(p Payload) slackMessage {
	var icon, title string
	switch p.Event {
	case EventContentDenied:
		icon = ":no_entry:"
		title = "Content Denied"
	case EventContentReview:
		icon = ":warning:"
		title = "Content Needs Review"
	case EventListReloadFailed:
		icon = ":rotating_light:"
		title = "Keyword List Reload Failed"
	default:
		icon = ":bell:"
		title = string(p.Event)
	}

	text := fmt.Sprintf("%s *AegisMask: %s*", icon, title)
	if p.List != "" {
		text += fmt.Sprintf("\nList: `%s`", p.List)
	}
	if p.MatchCount > 0 {
		text += fmt.Sprintf(" | Matches: %d", p.MatchCount)
	}
	if p.Decision != "" {
		text += fmt.Sprintf("\nDecision: `%s`", p.Decision)
	}
	if p.RequestID != "" {
		text += fmt.Sprintf("\nRequest: `%s`", p.RequestID)
	}
	if p.Error != "" {
		text += fmt.Sprintf("\nError: %s", p.Error)
	}

	return slackMessage{Text: text}
}
