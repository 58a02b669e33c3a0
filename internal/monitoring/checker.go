package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/enrich"
)

// MetricsSource supplies enrichment counters; *enrich.Orchestrator
// satisfies it.
type MetricsSource interface {
	Metrics() enrich.MetricsSnapshot
}

// Checker runs periodic alert checks in the background. An alert type is
// sent once when it starts firing and again only after it has cleared.
type Checker struct {
	source  MetricsSource
	alerter *Alerter
	cfg     config.MonitoringConfig
	firing  map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(source MetricsSource, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		source:  source,
		alerter: alerter,
		cfg:     cfg,
		firing:  make(map[AlertType]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates the current snapshot once and sends newly firing alerts.
// It returns the number sent.
func (c *Checker) Check(ctx context.Context) int {
	alerts := c.alerter.Evaluate(c.source.Metrics())

	active := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		active[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	c.firing = active

	if len(fresh) == 0 {
		zap.L().Debug("monitoring: no new alerts", zap.Int("active", len(alerts)))
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}
