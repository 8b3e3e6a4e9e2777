package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/config"
)

// Alert names
const (
	AlertSlowResponse   = "slow_response"
	AlertHighErrorRate  = "high_error_rate"
	AlertLowConversions = "low_conversion_rate"
)

// Alert is a threshold breach. Alerts are logged, never queued.
type Alert struct {
	Name        string    `json:"name"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	TriggeredAt time.Time `json:"triggered_at"`
}

type alertEvaluator struct {
	cfg     config.AlertConfig
	log     logrus.FieldLogger
	handler func(Alert)

	mu       sync.Mutex
	lastFire map[string]time.Time
}

func newAlertEvaluator(cfg config.AlertConfig, log logrus.FieldLogger) *alertEvaluator {
	return &alertEvaluator{cfg: cfg, log: log, lastFire: make(map[string]time.Time)}
}

func (a *alertEvaluator) checkResponseTime(rec AnalysisRecord, now time.Time) *Alert {
	limit := a.cfg.MaxResponseTime.Milliseconds()
	if limit <= 0 || rec.DurationMs <= limit {
		return nil
	}
	return a.fire(Alert{
		Name:      AlertSlowResponse,
		Severity:  "warning",
		Message:   fmt.Sprintf("%s analysis took %dms", rec.Type, rec.DurationMs),
		Value:     float64(rec.DurationMs),
		Threshold: float64(limit),
	}, now)
}

func (a *alertEvaluator) checkErrorRate(rate float64, samples int, now time.Time) *Alert {
	if a.cfg.MaxErrorRate <= 0 || samples == 0 || rate <= a.cfg.MaxErrorRate {
		return nil
	}
	return a.fire(Alert{
		Name:      AlertHighErrorRate,
		Severity:  "critical",
		Message:   fmt.Sprintf("error rate %.1f%% over %d analyses", rate*100, samples),
		Value:     rate,
		Threshold: a.cfg.MaxErrorRate,
	}, now)
}

func (a *alertEvaluator) checkConversionRate(rate float64, sessions int, now time.Time) *Alert {
	if a.cfg.MinConversionRate <= 0 || sessions < a.cfg.MinSessionsForConversion || rate >= a.cfg.MinConversionRate {
		return nil
	}
	return a.fire(Alert{
		Name:      AlertLowConversions,
		Severity:  "warning",
		Message:   fmt.Sprintf("conversion rate %.1f%% over %d sessions in the last hour", rate*100, sessions),
		Value:     rate,
		Threshold: a.cfg.MinConversionRate,
	}, now)
}

// fire logs the alert unless the same alert fired within the cooldown
func (a *alertEvaluator) fire(alert Alert, now time.Time) *Alert {
	a.mu.Lock()
	if last, ok := a.lastFire[alert.Name]; ok && now.Sub(last) < a.cfg.Cooldown {
		a.mu.Unlock()
		return nil
	}
	a.lastFire[alert.Name] = now
	a.mu.Unlock()

	alert.TriggeredAt = now
	a.log.WithFields(logrus.Fields{
		"alert":     alert.Name,
		"severity":  alert.Severity,
		"value":     alert.Value,
		"threshold": alert.Threshold,
	}).Warn(alert.Message)

	if a.handler != nil {
		a.handler(alert)
	}
	return &alert
}
