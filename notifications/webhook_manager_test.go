package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var week = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func TestNotifyDeliversPayload(t *testing.T) {
	var got WebhookPayload
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wm := NewWebhookManager(Config{URLs: []string{srv.URL}, AuthHeader: "X-Token", AuthValue: "s3cret"})
	err := wm.Notify(context.Background(), Alert{
		Type:      AlertPoolConflict,
		WeekStart: week,
		RunID:     "run-1",
		Pool:      "stocks",
	})
	require.NoError(t, err)

	assert.Equal(t, AlertPoolConflict, got.AlertType)
	assert.Equal(t, "2026-10-12", got.WeekStart)
	assert.Equal(t, "stocks", got.Pool)
	assert.Contains(t, got.Message, "Pool stocks not written")
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "s3cret", headers.Get("X-Token"))
}

func TestNotifyRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wm := NewWebhookManager(Config{URLs: []string{srv.URL}, Retries: 3})
	require.NoError(t, wm.Notify(context.Background(), Alert{Type: AlertRunSummary, WeekStart: week}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wm := NewWebhookManager(Config{URLs: []string{srv.URL}, FailureThreshold: 2, BreakerTimeout: time.Hour})
	ctx := context.Background()
	alert := Alert{Type: AlertRunFailed, WeekStart: week}

	assert.Error(t, wm.Notify(ctx, alert))
	assert.Error(t, wm.Notify(ctx, alert))
	err := wm.Notify(ctx, alert)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNotifyWithoutEndpoints(t *testing.T) {
	wm := NewWebhookManager(Config{})
	assert.False(t, wm.Enabled())
	assert.NoError(t, wm.Notify(context.Background(), Alert{Type: AlertRunFailed}))

	var nilManager *WebhookManager
	assert.NoError(t, nilManager.Notify(context.Background(), Alert{Type: AlertRunFailed}))
}

func TestDefaultMessages(t *testing.T) {
	tests := []struct {
		alert Alert
		want  string
	}{
		{Alert{Type: AlertRunFailed, WeekStart: week}, "Weekly run 2026-10-12 failed"},
		{Alert{Type: AlertUnreliableParams, WeekStart: week, Symbols: []string{"AAPL", "MSFT"}}, "2 symbol(s) with unreliable parameters"},
		{Alert{Type: AlertRunSummary, WeekStart: week}, "complete"},
		{Alert{Type: "OTHER"}, "OTHER"},
	}
	for _, tt := range tests {
		t.Run(tt.alert.Type, func(t *testing.T) {
			assert.Contains(t, defaultMessage(tt.alert), tt.want)
		})
	}
}
