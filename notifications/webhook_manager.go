// Package notifications delivers operator alerts to webhooks: failed pool
// writes, unreliable backtest parameters and weekly run summaries.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Alert types
const (
	AlertRunFailed        = "RUN_FAILED"
	AlertPoolConflict     = "POOL_CONFLICT"
	AlertUnreliableParams = "UNRELIABLE_PARAMS"
	AlertRunSummary       = "RUN_SUMMARY"
)

// Alert is one operator notification.
type Alert struct {
	Type      string
	WeekStart time.Time
	RunID     string
	Pool      string
	Symbols   []string
	Message   string
	Metadata  map[string]interface{}
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	AlertType  string                 `json:"AlertType"`
	WeekStart  string                 `json:"WeekStart"`
	RunID      string                 `json:"RunID,omitempty"`
	Pool       string                 `json:"Pool,omitempty"`
	Symbols    []string               `json:"Symbols,omitempty"`
	Message    string                 `json:"Message"`
	Metadata   map[string]interface{} `json:"Metadata,omitempty"`
	DetectedAt time.Time              `json:"DetectedAt"`
}

// Config configures webhook delivery
type Config struct {
	URLs       []string
	AuthHeader string
	AuthValue  string
	Retries    int
	RetryDelay time.Duration
	// FailureThreshold consecutive failures open the endpoint's breaker.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// WebhookManager handles webhook notifications. Each endpoint has its own
// circuit breaker, so a dead endpoint stops costing retries.
type WebhookManager struct {
	cfg      Config
	client   *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
	now      func() time.Time
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(cfg Config) *WebhookManager {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}

	wm := &WebhookManager{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(cfg.URLs)),
		now:      time.Now,
	}
	for _, url := range cfg.URLs {
		threshold := cfg.FailureThreshold
		wm.breakers[url] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "webhook " + url,
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}
	return wm
}

// Enabled reports whether any endpoint is configured.
func (wm *WebhookManager) Enabled() bool {
	return wm != nil && len(wm.cfg.URLs) > 0
}

// Notify delivers the alert to every endpoint. It returns the joined
// delivery errors; a failing endpoint does not stop the others.
func (wm *WebhookManager) Notify(ctx context.Context, alert Alert) error {
	if !wm.Enabled() {
		return nil
	}

	payload := wm.CreatePayload(alert)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var errs []error
	for _, url := range wm.cfg.URLs {
		if err := wm.deliverWebhook(ctx, url, payloadBytes); err != nil {
			log.Warn().Err(err).Str("url", url).Str("alert_type", alert.Type).Msg("⚠️  Webhook delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

// CreatePayload generates the webhook payload from an alert
func (wm *WebhookManager) CreatePayload(alert Alert) WebhookPayload {
	message := alert.Message
	if message == "" {
		message = defaultMessage(alert)
	}
	week := ""
	if !alert.WeekStart.IsZero() {
		week = alert.WeekStart.Format(time.DateOnly)
	}
	return WebhookPayload{
		AlertType:  alert.Type,
		WeekStart:  week,
		RunID:      alert.RunID,
		Pool:       alert.Pool,
		Symbols:    alert.Symbols,
		Message:    message,
		Metadata:   alert.Metadata,
		DetectedAt: wm.now().UTC(),
	}
}

func defaultMessage(alert Alert) string {
	week := alert.WeekStart.Format(time.DateOnly)
	switch alert.Type {
	case AlertRunFailed:
		return fmt.Sprintf("🚨 Weekly run %s failed", week)
	case AlertPoolConflict:
		return fmt.Sprintf("🚨 Pool %s not written for week %s: concurrent update, previous state kept", alert.Pool, week)
	case AlertUnreliableParams:
		return fmt.Sprintf("⚠️ %d symbol(s) with unreliable parameters for week %s", len(alert.Symbols), week)
	case AlertRunSummary:
		return fmt.Sprintf("✅ Weekly run %s complete", week)
	default:
		return alert.Type
	}
}

func (wm *WebhookManager) deliverWebhook(ctx context.Context, url string, payload []byte) error {
	breaker := wm.breakers[url]
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, wm.post(ctx, url, payload)
	})
	return err
}

func (wm *WebhookManager) post(ctx context.Context, url string, payload []byte) error {
	var lastErr error
	for attempt := 1; attempt <= wm.cfg.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "LongEntry-Alert/1.0")
		if wm.cfg.AuthHeader != "" {
			req.Header.Set(wm.cfg.AuthHeader, wm.cfg.AuthValue)
		}

		log.Debug().Str("url", url).Int("attempt", attempt).Int("max", wm.cfg.Retries).Msg("🔹 Sending webhook")

		resp, err := wm.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		lastErr = err

		// Wait before retry
		if attempt < wm.cfg.Retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wm.cfg.RetryDelay):
			}
		}
	}
	return lastErr
}
