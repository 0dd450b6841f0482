package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/testmentor-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(nil), map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})
	w, c := newPublicContext("/ready")
	h.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	failing := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	w, c = newPublicContext("/ready")
	failing.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService(func() int { return 2 })
	metrics.ObserveBookingAttempt(service.OutcomeCreated)
	h := NewMetricsHandler(metrics, nil)

	w, c := newPublicContext("/metrics")
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "booking_attempts_total")
	assert.Contains(t, w.Body.String(), "booking_slot_locks_held 2")

	w, c = newPublicContext("/metrics")
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
