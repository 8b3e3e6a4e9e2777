package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-palm-insight/internal/aiclient"
	"go-palm-insight/internal/analyzer"
	"go-palm-insight/internal/cache"
	"go-palm-insight/internal/config"
	"go-palm-insight/internal/conversion"
	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/internal/imaging"
	"go-palm-insight/internal/logger"
	"go-palm-insight/internal/metrics"
	"go-palm-insight/internal/observer"
	"go-palm-insight/internal/report"
	"go-palm-insight/pkg/models"
)

// countingText counts generation calls and can stall them
type countingText struct {
	aiclient.TextGenerator
	calls atomic.Int32
	delay time.Duration
}

func (c *countingText) Generate(ctx context.Context, prompt string, opts aiclient.GenerateOptions) (string, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.TextGenerator.Generate(ctx, prompt, opts)
}

// brokenStore is a distributed tier that fails every call
type brokenStore struct{}

var errStoreDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (brokenStore) Delete(context.Context, string) error           { return errStoreDown }
func (brokenStore) Keys(context.Context, string) ([]string, error) { return nil, errStoreDown }
func (brokenStore) Ping(context.Context) error                     { return errStoreDown }
func (brokenStore) Close() error                                   { return nil }

type recordingObserver struct {
	mu     sync.Mutex
	events []observer.PipelineEvent
}

func (r *recordingObserver) OnEvent(_ context.Context, e observer.PipelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) GetObserverName() string { return "recording" }

func (r *recordingObserver) states() []observer.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observer.State, len(r.events))
	for i, e := range r.events {
		out[i] = e.State
	}
	return out
}

type harness struct {
	engine    Engine
	text      *countingText
	collector *metrics.Collector
	cache     *cache.Manager
	events    *recordingObserver
}

func newHarness(t *testing.T, cfg *config.Config, cacheOpts ...cache.Option) *harness {
	t.Helper()
	log := logger.Discard()

	text := &countingText{TextGenerator: aiclient.NewStaticGenerator()}
	cacheManager := cache.NewManager(cfg.Cache, log, cacheOpts...)
	collector := metrics.NewCollector(cfg.Metrics, cfg.Alerts, log)
	extractor := analyzer.NewFeatureExtractor(analyzer.OptionsFromConfig(cfg.Extraction), log)
	t.Cleanup(func() {
		_ = extractor.Close()
		_ = cacheManager.Close()
		_ = collector.Close()
	})

	events := &recordingObserver{}
	publisher := observer.NewEventPublisher(log)
	publisher.Subscribe(events)

	e, err := New(Dependencies{
		Processor: imaging.NewProcessor(imaging.OptionsFromConfig(cfg.Image), log),
		Extractor: extractor,
		Generator: report.NewGenerator(text, cfg.AI, log),
		Optimizer: conversion.NewOptimizer(cfg.Conversion, log, conversion.WithRecorder(collector)),
		Cache:     cacheManager,
		Metrics:   collector,
		Text:      text,
		Events:    publisher,
	}, cfg.Performance, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{engine: e, text: text, collector: collector, cache: cacheManager, events: events}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Cache.SweepInterval = 0
	cfg.Metrics.RealtimeRefresh = 0
	cfg.Metrics.PruneInterval = 0
	return cfg
}

func handImage(t *testing.T, w, h int) models.ImageData {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(150 + (x*50)/w + ((x*7+y*13)%23)/2)
			// a dark diagonal crease
			if d := y - h/3 - x/3; d >= 0 && d < 4 {
				v = 60
			}
			img.Set(x, y, color.RGBA{R: v, G: uint8(int(v) * 8 / 10), B: uint8(int(v) * 7 / 10), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return models.ImageData{Buffer: buf.Bytes(), MimeType: "image/jpeg", Size: int64(buf.Len()), Width: w, Height: h}
}

func testUser() models.UserInfo {
	return models.UserInfo{
		BirthDate: time.Date(1995, 7, 28, 0, 0, 0, 0, time.UTC),
		Gender:    models.GenderFemale,
		Language:  "en",
	}
}

func TestAnalyzeQuick_HappyPath(t *testing.T) {
	h := newHarness(t, testConfig())

	res, err := h.engine.AnalyzeQuick(context.Background(), handImage(t, 1200, 1600), testUser(), "user-1")
	if err != nil {
		t.Fatalf("AnalyzeQuick: %v", err)
	}

	for _, d := range models.Dimensions {
		if res.Report.Summary(d) == "" {
			t.Errorf("dimension %s has an empty summary", d)
		}
	}
	if res.Report.Metadata.ProcessingTime >= 60000 {
		t.Errorf("processing time %dms exceeds the budget", res.Report.Metadata.ProcessingTime)
	}
	if res.Report.Metadata.ID == "" || res.Report.Metadata.UserID != "user-1" {
		t.Errorf("unexpected metadata %+v", res.Report.Metadata)
	}
	if res.ConversionHints.PersonalizedMessage == "" || len(res.ConversionHints.HighlightedDimensions) == 0 {
		t.Errorf("conversion hints not populated: %+v", res.ConversionHints)
	}
	if h.text.calls.Load() != 5 {
		t.Errorf("expected 5 generation calls, got %d", h.text.calls.Load())
	}

	records := h.collector.Analyses()
	if len(records) != 1 || !records[0].Success || records[0].Type != metrics.AnalysisQuick {
		t.Errorf("expected one successful quick metric, got %+v", records)
	}

	want := []observer.State{
		observer.StatePending,
		observer.StateExtractingFeatures,
		observer.StateGeneratingReport,
		observer.StateOptimizing,
		observer.StateDone,
	}
	got := h.events.states()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAnalyzeQuick_FeatureCacheHit(t *testing.T) {
	h := newHarness(t, testConfig())
	img := handImage(t, 400, 500)

	if _, err := h.engine.AnalyzeQuick(context.Background(), img, testUser(), "user-1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := h.cache.Stats().L1Hits
	if _, err := h.engine.AnalyzeQuick(context.Background(), img, testUser(), "user-1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if h.cache.Stats().L1Hits <= before {
		t.Error("second run of identical bytes should hit the feature cache")
	}

	var cachedFlags []any
	h.events.mu.Lock()
	for _, e := range h.events.events {
		if e.State == observer.StateExtractingFeatures {
			cachedFlags = append(cachedFlags, e.Metadata["features_cached"])
		}
	}
	h.events.mu.Unlock()
	if len(cachedFlags) != 2 || cachedFlags[0] != false || cachedFlags[1] != true {
		t.Errorf("features_cached flags = %v", cachedFlags)
	}
}

func TestAnalyzeQuick_OversizedImageRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	img := handImage(t, 400, 500)
	img.Size = 60 * 1024 * 1024

	_, err := h.engine.AnalyzeQuick(context.Background(), img, testUser(), "user-1")
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.CodeImageProcessing {
		t.Fatalf("expected image processing error, got %v", err)
	}
	if appErr.Violation() != apperrors.ViolationTooLarge {
		t.Errorf("violation = %s, want %s", appErr.Violation(), apperrors.ViolationTooLarge)
	}

	for _, s := range h.events.states() {
		if s == observer.StateExtractingFeatures {
			t.Error("extraction must not be reported as started for a rejected image")
		}
	}
	if h.text.calls.Load() != 0 {
		t.Errorf("no generation expected, got %d calls", h.text.calls.Load())
	}
	records := h.collector.Analyses()
	if len(records) != 1 || records[0].Success {
		t.Errorf("expected one failed metric, got %+v", records)
	}
	if n := h.collector.Counts()["errors"]; n != 1 {
		t.Errorf("expected one error record, got %d", n)
	}
}

func TestAnalyzeQuick_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Performance.QuickAnalysisTimeout = 300 * time.Millisecond
	h := newHarness(t, cfg)
	h.text.delay = 10 * time.Second

	start := time.Now()
	_, err := h.engine.AnalyzeQuick(context.Background(), handImage(t, 300, 400), testUser(), "user-1")
	elapsed := time.Since(start)

	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.CodeTimeout {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}
	if appErr.Details["timeout_ms"] != int64(300) {
		t.Errorf("timeout_ms = %v, want 300", appErr.Details["timeout_ms"])
	}
	if elapsed > cfg.Performance.QuickAnalysisTimeout+time.Second {
		t.Errorf("returned after %s, budget was %s", elapsed, cfg.Performance.QuickAnalysisTimeout)
	}

	// give the abandoned worker a moment to observe cancellation
	time.Sleep(50 * time.Millisecond)
	records := h.collector.Analyses()
	if len(records) != 1 || records[0].Success {
		t.Errorf("expected exactly one failed metric, got %+v", records)
	}
	states := h.events.states()
	if last := states[len(states)-1]; last != observer.StateFailed {
		t.Errorf("last state = %s, want failed", last)
	}
}

func TestAnalyzeQuick_BrokenDistributedCache(t *testing.T) {
	h := newHarness(t, testConfig(), cache.WithStore(brokenStore{}))

	res, err := h.engine.AnalyzeQuick(context.Background(), handImage(t, 400, 500), testUser(), "user-1")
	if err != nil {
		t.Fatalf("a failing L2 must not fail the analysis: %v", err)
	}
	if res.Report == nil {
		t.Fatal("missing report")
	}
	if _, err := h.engine.LoadQuickReport(context.Background(), res.Report.Metadata.ID); err != nil {
		t.Errorf("quick report should still be served from L1: %v", err)
	}
}

func TestAnalyzeQuick_CachedReportMatchesResponse(t *testing.T) {
	h := newHarness(t, testConfig())
	h.text.delay = 20 * time.Millisecond

	res, err := h.engine.AnalyzeQuick(context.Background(), handImage(t, 800, 1000), testUser(), "user-1")
	if err != nil {
		t.Fatalf("AnalyzeQuick: %v", err)
	}
	loaded, err := h.engine.LoadQuickReport(context.Background(), res.Report.Metadata.ID)
	if err != nil {
		t.Fatalf("LoadQuickReport: %v", err)
	}

	if loaded.Metadata.ProcessingTime != res.Report.Metadata.ProcessingTime {
		t.Errorf("cached processing time = %dms, response = %dms",
			loaded.Metadata.ProcessingTime, res.Report.Metadata.ProcessingTime)
	}
	if res.Report.Metadata.ProcessingTime < 20 {
		t.Errorf("processing time %dms should cover report generation", res.Report.Metadata.ProcessingTime)
	}

	want, _ := json.Marshal(res.ConversionHints)
	got, _ := json.Marshal(loaded.ConversionHints)
	if string(got) != string(want) {
		t.Errorf("cached hints differ:\n got %s\nwant %s", got, want)
	}
}

func TestAnalyzeQuick_InvalidUser(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.engine.AnalyzeQuick(context.Background(), handImage(t, 300, 400), models.UserInfo{}, "user-1")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(h.collector.Analyses()) != 1 {
		t.Error("a rejected request still records its analysis metric")
	}
}

func TestAnalyzeComplete_ReusesCachedReport(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	quick, err := h.engine.AnalyzeQuick(ctx, handImage(t, 400, 500), testUser(), "user-1")
	if err != nil {
		t.Fatalf("AnalyzeQuick: %v", err)
	}
	afterQuick := h.text.calls.Load()

	first, err := h.engine.AnalyzeComplete(ctx, quick.Report, testUser(), "user-1")
	if err != nil {
		t.Fatalf("first AnalyzeComplete: %v", err)
	}
	afterFirst := h.text.calls.Load()
	if afterFirst == afterQuick {
		t.Fatal("first full report should call the generator")
	}

	second, err := h.engine.AnalyzeComplete(ctx, quick.Report, testUser(), "user-1")
	if err != nil {
		t.Fatalf("second AnalyzeComplete: %v", err)
	}
	if h.text.calls.Load() != afterFirst {
		t.Errorf("cache hit must not call the generator again (%d -> %d)", afterFirst, h.text.calls.Load())
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Error("cached full report differs from the generated one")
	}

	records := h.collector.Analyses()
	last := records[len(records)-1]
	if last.Type != metrics.AnalysisComplete || !last.Cached || !last.Success {
		t.Errorf("unexpected last metric %+v", last)
	}
	if len(first.DailyGuidance) != 7 || len(first.MonthlyForecast) != 12 {
		t.Errorf("guidance %d days, forecast %d months", len(first.DailyGuidance), len(first.MonthlyForecast))
	}
}

func TestAnalyzeComplete_RequiresReportID(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.engine.AnalyzeComplete(context.Background(), &models.QuickReport{}, testUser(), "user-1")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestLoadQuickReport_NotFound(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.engine.LoadQuickReport(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGetHealthStatus(t *testing.T) {
	h := newHarness(t, testConfig())
	status := h.engine.GetHealthStatus(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("status = %s, services %+v", status.Status, status.Services)
	}
	for _, name := range []string{"image_processor", "feature_extractor", "cache", "metrics", "text_generator"} {
		if _, ok := status.Services[name]; !ok {
			t.Errorf("missing probe %s", name)
		}
	}

	degraded := newHarness(t, testConfig(), cache.WithStore(brokenStore{}))
	status = degraded.engine.GetHealthStatus(context.Background())
	if status.Status != StatusDegraded || status.Services["cache"].Status != StatusUnhealthy {
		t.Errorf("broken L2 should degrade health, got %s %+v", status.Status, status.Services["cache"])
	}
}

type panickingText struct{ aiclient.TextGenerator }

func (panickingText) Ping(context.Context) error { panic("ping bug") }

func TestGetHealthStatus_PanickingProbe(t *testing.T) {
	cfg := testConfig()
	log := logger.Discard()
	cacheManager := cache.NewManager(cfg.Cache, log)
	defer cacheManager.Close()

	e, err := New(Dependencies{
		Processor: imaging.NewProcessor(imaging.OptionsFromConfig(cfg.Image), log),
		Extractor: analyzer.NewFeatureExtractor(analyzer.DefaultOptions(), log),
		Generator: report.NewGenerator(aiclient.NewStaticGenerator(), cfg.AI, log),
		Optimizer: conversion.NewOptimizer(cfg.Conversion, log),
		Cache:     cacheManager,
		Metrics:   metrics.NewCollector(cfg.Metrics, cfg.Alerts, log),
		Text:      panickingText{aiclient.NewStaticGenerator()},
	}, cfg.Performance, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	status := e.GetHealthStatus(context.Background())
	if status.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", status.Status)
	}
}

func TestNew_RequiresComponents(t *testing.T) {
	if _, err := New(Dependencies{}, config.PerformanceConfig{}, logger.Discard()); err == nil {
		t.Error("expected an error for missing dependencies")
	}
}
