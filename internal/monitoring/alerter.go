package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/enrich"
	"github.com/sells-group/lead-enrich/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSearchFailureRate AlertType = "search_failure_rate"
	AlertCircuitOpen       AlertType = "circuit_open"
	AlertSourceErrors      AlertType = "source_errors"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates an enrichment MetricsSnapshot against configured
// thresholds and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap enrich.MetricsSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	// Cache hits never fail, so the rate is over searches that ran.
	finished := snap.SuccessfulSearches + snap.FailedSearches
	if finished > 0 && finished >= a.cfg.MinSearches {
		rate := float64(snap.FailedSearches) / float64(finished)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertSearchFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Enrichment failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
					rate*100, a.cfg.FailureRateThreshold*100, snap.FailedSearches, finished,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       snap.FailedSearches,
					"finished":     finished,
				},
				Timestamp: now,
			})
		}
	}

	var open []string
	for name, state := range snap.CircuitStates {
		if state == resilience.CircuitOpen.String() {
			open = append(open, name)
		}
	}
	if len(open) > 0 {
		sort.Strings(open)
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "high",
			Message:   fmt.Sprintf("Circuit open for %d source(s): %v", len(open), open),
			Details:   map[string]any{"sources": open},
			Timestamp: now,
		})
	}

	if a.cfg.SourceErrorThreshold > 0 {
		noisy := make(map[string]int)
		for src, n := range snap.SourceErrors {
			if n >= a.cfg.SourceErrorThreshold {
				noisy[src.String()] = n
			}
		}
		if len(noisy) > 0 {
			alerts = append(alerts, Alert{
				Type:     AlertSourceErrors,
				Severity: "medium",
				Message: fmt.Sprintf(
					"%d source(s) at or above %d errors", len(noisy), a.cfg.SourceErrorThreshold,
				),
				Details: map[string]any{
					"errors":    noisy,
					"threshold": a.cfg.SourceErrorThreshold,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
