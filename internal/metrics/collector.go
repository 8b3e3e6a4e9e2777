package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/tomb.v2"

	"go-palm-insight/internal/config"
)

const dateLayout = "2006-01-02"

// Collector records pipeline events, keeps rolling aggregates and raises
// threshold alerts. Every Record method is fire-and-forget.
type Collector struct {
	mu          sync.RWMutex
	analyses    []AnalysisRecord
	conversions []ConversionRecord
	errors      []ErrorRecord
	sessions    []SessionRecord
	cache       []CacheRecord

	realTime   RealTimeStats
	daily      DailyStats
	dailyUsers map[string]struct{}

	cfg     config.MetricsConfig
	alerts  *alertEvaluator
	prom    *promMirror
	now     func() time.Time
	log     logrus.FieldLogger
	t       tomb.Tomb
	started bool
	stop    sync.Once
}

// Option customizes a Collector
type Option func(*Collector)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithRegisterer mirrors events into Prometheus collectors registered on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Collector) {
		if reg != nil {
			c.prom = newPromMirror(c.cfg.Namespace, reg)
		}
	}
}

// WithAlertHandler observes triggered alerts in addition to the log line
func WithAlertHandler(handler func(Alert)) Option {
	return func(c *Collector) { c.alerts.handler = handler }
}

// NewCollector creates a collector. Background loops are not running until Start.
func NewCollector(cfg config.MetricsConfig, alertCfg config.AlertConfig, log logrus.FieldLogger, opts ...Option) *Collector {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.RealtimeWindow <= 0 {
		cfg.RealtimeWindow = 5 * time.Minute
	}
	c := &Collector{
		cfg:        cfg,
		dailyUsers: make(map[string]struct{}),
		now:        time.Now,
		log:        log.WithField("component", "metrics_collector"),
	}
	c.alerts = newAlertEvaluator(alertCfg, c.log)
	for _, opt := range opts {
		opt(c)
	}
	c.daily.Date = c.now().UTC().Format(dateLayout)
	return c
}

// Start launches the realtime refresh and retention prune loops
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	if c.cfg.RealtimeRefresh > 0 {
		c.t.Go(func() error { return c.every(c.cfg.RealtimeRefresh, c.RefreshRealTime) })
	}
	if c.cfg.PruneInterval > 0 {
		c.t.Go(func() error { return c.every(c.cfg.PruneInterval, func() { c.Prune() }) })
	}
}

// Close stops the background loops
func (c *Collector) Close() error {
	c.stop.Do(func() {
		c.mu.RLock()
		running := c.started && (c.cfg.RealtimeRefresh > 0 || c.cfg.PruneInterval > 0)
		c.mu.RUnlock()
		if running {
			c.t.Kill(nil)
			_ = c.t.Wait()
		}
	})
	return nil
}

func (c *Collector) every(interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.guard("background", fn)
		case <-c.t.Dying():
			return nil
		}
	}
}

// guard keeps a metrics failure from ever reaching the caller
func (c *Collector) guard(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{"operation": op, "panic": r}).Error("Metrics operation failed")
		}
	}()
	fn()
}

func (c *Collector) RecordAnalysis(rec AnalysisRecord) {
	c.guard("record_analysis", func() {
		c.mu.Lock()
		rec.Timestamp = c.now()
		c.rollDayLocked(rec.Timestamp)
		c.analyses = append(c.analyses, rec)
		c.daily.Analyses++
		if !rec.Success {
			c.daily.Failures++
		}
		c.trackUserLocked(rec.UserID)
		errorRate, samples := c.errorRateLocked(rec.Timestamp)
		c.mu.Unlock()

		if c.prom != nil {
			status := "success"
			if !rec.Success {
				status = "failure"
			}
			c.prom.analyses.WithLabelValues(rec.Type, status).Inc()
			c.prom.analysisSeconds.WithLabelValues(rec.Type).Observe(float64(rec.DurationMs) / 1000)
		}

		c.raise(c.alerts.checkResponseTime(rec, rec.Timestamp))
		c.raise(c.alerts.checkErrorRate(errorRate, samples, rec.Timestamp))
	})
}

func (c *Collector) RecordConversion(rec ConversionRecord) {
	c.guard("record_conversion", func() {
		c.mu.Lock()
		rec.Timestamp = c.now()
		c.rollDayLocked(rec.Timestamp)
		c.conversions = append(c.conversions, rec)
		c.daily.Conversions++
		c.daily.Revenue += rec.Amount
		c.trackUserLocked(rec.UserID)
		rate, sessions := c.hourlyConversionLocked(rec.Timestamp)
		c.mu.Unlock()

		if c.prom != nil {
			c.prom.conversions.WithLabelValues(rec.Strategy, rec.Variant).Inc()
			c.prom.revenue.Add(rec.Amount)
		}
		c.raise(c.alerts.checkConversionRate(rate, sessions, rec.Timestamp))
	})
}

func (c *Collector) RecordError(rec ErrorRecord) {
	c.guard("record_error", func() {
		c.mu.Lock()
		rec.Timestamp = c.now()
		c.rollDayLocked(rec.Timestamp)
		c.errors = append(c.errors, rec)
		errorRate, samples := c.errorRateLocked(rec.Timestamp)
		c.mu.Unlock()

		if c.prom != nil {
			c.prom.errors.WithLabelValues(rec.Code, rec.Component).Inc()
		}
		c.raise(c.alerts.checkErrorRate(errorRate, samples, rec.Timestamp))
	})
}

func (c *Collector) RecordUserSession(rec SessionRecord) {
	c.guard("record_session", func() {
		c.mu.Lock()
		rec.Timestamp = c.now()
		c.rollDayLocked(rec.Timestamp)
		c.sessions = append(c.sessions, rec)
		c.daily.Sessions++
		c.trackUserLocked(rec.UserID)
		rate, sessions := c.hourlyConversionLocked(rec.Timestamp)
		c.mu.Unlock()

		if c.prom != nil {
			c.prom.sessions.Inc()
		}
		c.raise(c.alerts.checkConversionRate(rate, sessions, rec.Timestamp))
	})
}

func (c *Collector) RecordCacheMetric(rec CacheRecord) {
	c.guard("record_cache", func() {
		c.mu.Lock()
		rec.Timestamp = c.now()
		c.cache = append(c.cache, rec)
		c.mu.Unlock()

		if c.prom != nil {
			c.prom.cacheRequests.WithLabelValues(rec.Tier).Inc()
		}
	})
}

// RefreshRealTime recomputes realTimeStats from the configured window
func (c *Collector) RefreshRealTime() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	since := now.Add(-c.cfg.RealtimeWindow)
	stats := RealTimeStats{WindowStart: since, UpdatedAt: now}

	users := make(map[string]struct{})
	var durations, failed []float64
	for _, rec := range c.analyses {
		if rec.Timestamp.Before(since) {
			continue
		}
		stats.Analyses++
		durations = append(durations, float64(rec.DurationMs))
		failed = append(failed, outcome(!rec.Success))
		if !rec.Success {
			stats.Failures++
		}
		if rec.UserID != "" {
			users[rec.UserID] = struct{}{}
		}
	}
	for _, rec := range c.errors {
		if !rec.Timestamp.Before(since) {
			stats.Errors++
		}
	}
	var hits []float64
	for _, rec := range c.cache {
		if !rec.Timestamp.Before(since) {
			hits = append(hits, outcome(rec.Hit))
		}
	}
	for _, rec := range c.sessions {
		if !rec.Timestamp.Before(since) && rec.UserID != "" {
			users[rec.UserID] = struct{}{}
		}
	}

	if len(durations) > 0 {
		stats.AvgProcessingMs = stat.Mean(durations, nil)
		stats.ErrorRate = stat.Mean(failed, nil)
	}
	if len(hits) > 0 {
		stats.CacheHitRate = stat.Mean(hits, nil)
	}
	stats.ActiveUsers = len(users)
	c.realTime = stats
}

// RealTime returns the last computed realtime snapshot
func (c *Collector) RealTime() RealTimeStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.realTime
}

// Daily returns today's running totals
func (c *Collector) Daily() DailyStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked(c.now())
	return c.daily
}

// GetPerformanceMetrics reports processing time and outcome rates over the last hour
func (c *Collector) GetPerformanceMetrics() PerformanceMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	since := c.now().Add(-time.Hour)
	var out PerformanceMetrics
	var durations, failed []float64
	for _, rec := range c.analyses {
		if rec.Timestamp.Before(since) {
			continue
		}
		durations = append(durations, float64(rec.DurationMs))
		failed = append(failed, outcome(!rec.Success))
	}
	out.TotalAnalyses = len(durations)
	if out.TotalAnalyses > 0 {
		out.AvgProcessingTimeMs = stat.Mean(durations, nil)
		out.ErrorRate = stat.Mean(failed, nil)
		out.SuccessRate = 1 - out.ErrorRate
	}
	return out
}

// outcome maps a flag to 1 or 0 so rates can be taken as means
func outcome(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// GetBusinessMetrics reports today's conversion funnel
func (c *Collector) GetBusinessMetrics() BusinessMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked(c.now())

	out := BusinessMetrics{
		Date:        c.daily.Date,
		UniqueUsers: c.daily.UniqueUsers,
		Revenue:     c.daily.Revenue,
		Conversions: c.daily.Conversions,
		Sessions:    c.daily.Sessions,
	}
	if c.daily.Sessions > 0 {
		out.ConversionRate = float64(c.daily.Conversions) / float64(c.daily.Sessions)
	}
	if c.daily.Conversions > 0 {
		out.AverageOrderValue = c.daily.Revenue / float64(c.daily.Conversions)
	}
	return out
}

// Prune drops every record older than the retention window
func (c *Collector) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.Retention)
	removed := 0
	c.analyses, removed = pruneBefore(c.analyses, cutoff, func(r AnalysisRecord) time.Time { return r.Timestamp }, removed)
	c.conversions, removed = pruneBefore(c.conversions, cutoff, func(r ConversionRecord) time.Time { return r.Timestamp }, removed)
	c.errors, removed = pruneBefore(c.errors, cutoff, func(r ErrorRecord) time.Time { return r.Timestamp }, removed)
	c.sessions, removed = pruneBefore(c.sessions, cutoff, func(r SessionRecord) time.Time { return r.Timestamp }, removed)
	c.cache, removed = pruneBefore(c.cache, cutoff, func(r CacheRecord) time.Time { return r.Timestamp }, removed)

	if removed > 0 {
		c.log.WithField("removed", removed).Debug("Pruned metric records")
	}
	return removed
}

// Counts returns the number of retained records per kind
func (c *Collector) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"analyses":    len(c.analyses),
		"conversions": len(c.conversions),
		"errors":      len(c.errors),
		"sessions":    len(c.sessions),
		"cache":       len(c.cache),
	}
}

// Analyses returns a copy of the retained analysis records
func (c *Collector) Analyses() []AnalysisRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AnalysisRecord, len(c.analyses))
	copy(out, c.analyses)
	return out
}

// pruneBefore keeps records at or after cutoff. Records are appended in
// timestamp order, so the kept tail is contiguous.
func pruneBefore[T any](records []T, cutoff time.Time, ts func(T) time.Time, removed int) ([]T, int) {
	i := 0
	for i < len(records) && ts(records[i]).Before(cutoff) {
		i++
	}
	if i == 0 {
		return records, removed
	}
	kept := make([]T, len(records)-i)
	copy(kept, records[i:])
	return kept, removed + i
}

func (c *Collector) rollDayLocked(now time.Time) {
	today := now.UTC().Format(dateLayout)
	if c.daily.Date == today {
		return
	}
	c.log.WithFields(logrus.Fields{
		"date":        c.daily.Date,
		"analyses":    c.daily.Analyses,
		"conversions": c.daily.Conversions,
		"revenue":     strconv.FormatFloat(c.daily.Revenue, 'f', 2, 64),
	}).Info("Daily metrics rolled over")
	c.daily = DailyStats{Date: today}
	c.dailyUsers = make(map[string]struct{})
}

func (c *Collector) trackUserLocked(userID string) {
	if userID == "" {
		return
	}
	if _, ok := c.dailyUsers[userID]; !ok {
		c.dailyUsers[userID] = struct{}{}
		c.daily.UniqueUsers = len(c.dailyUsers)
	}
}

// errorRateLocked is failed analyses over all analyses in the realtime window
func (c *Collector) errorRateLocked(now time.Time) (float64, int) {
	since := now.Add(-c.cfg.RealtimeWindow)
	total, failed := 0, 0
	for i := len(c.analyses) - 1; i >= 0; i-- {
		rec := c.analyses[i]
		if rec.Timestamp.Before(since) {
			break
		}
		total++
		if !rec.Success {
			failed++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(failed) / float64(total), total
}

// hourlyConversionLocked is conversions over sessions in the last hour
func (c *Collector) hourlyConversionLocked(now time.Time) (float64, int) {
	since := now.Add(-time.Hour)
	sessions := 0
	for i := len(c.sessions) - 1; i >= 0 && !c.sessions[i].Timestamp.Before(since); i-- {
		sessions++
	}
	conversions := 0
	for i := len(c.conversions) - 1; i >= 0 && !c.conversions[i].Timestamp.Before(since); i-- {
		conversions++
	}
	if sessions == 0 {
		return 0, 0
	}
	return float64(conversions) / float64(sessions), sessions
}

func (c *Collector) raise(alert *Alert) {
	if alert == nil {
		return
	}
	if c.prom != nil {
		c.prom.alerts.WithLabelValues(alert.Name).Inc()
	}
}
