package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/aiclient"
	"go-palm-insight/internal/analyzer"
	"go-palm-insight/internal/cache"
	"go-palm-insight/internal/config"
	"go-palm-insight/internal/conversion"
	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/internal/imaging"
	"go-palm-insight/internal/metrics"
	"go-palm-insight/internal/observer"
	"go-palm-insight/internal/report"
	"go-palm-insight/pkg/models"
)

// Engine runs the two-phase analysis pipeline
type Engine interface {
	// AnalyzeQuick runs the whole quick pipeline under the quick analysis budget
	AnalyzeQuick(ctx context.Context, image models.ImageData, user models.UserInfo, userID string) (*models.QuickAnalysisResult, error)
	// AnalyzeComplete extends a quick report, reusing a cached full report when one exists
	AnalyzeComplete(ctx context.Context, quick *models.QuickReport, user models.UserInfo, userID string) (*models.FullReport, error)
	// LoadQuickReport returns a quick report produced earlier by AnalyzeQuick
	LoadQuickReport(ctx context.Context, reportID string) (*models.QuickReport, error)
	GetHealthStatus(ctx context.Context) HealthStatus
}

// MetricsRecorder is the part of the metrics collector the engine writes to
type MetricsRecorder interface {
	RecordAnalysis(rec metrics.AnalysisRecord)
	RecordError(rec metrics.ErrorRecord)
	GetPerformanceMetrics() metrics.PerformanceMetrics
}

// Dependencies are the pipeline components, built once at startup
type Dependencies struct {
	Processor imaging.Processor
	Extractor analyzer.FeatureExtractor
	Generator report.Generator
	Optimizer conversion.Optimizer
	Cache     *cache.Manager
	Metrics   MetricsRecorder
	// Text is probed by the health check only
	Text aiclient.TextGenerator
	// Events is optional
	Events observer.Subject
}

type engine struct {
	deps  Dependencies
	cfg   config.PerformanceConfig
	now   func() time.Time
	newID func() string
	probe models.ImageData
	log   logrus.FieldLogger
}

// Option customizes the engine
type Option func(*engine)

func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// WithRequestIDs replaces the request id generator
func WithRequestIDs(newID func() string) Option {
	return func(e *engine) { e.newID = newID }
}

// New creates an engine. Processor, Extractor, Generator, Optimizer, Cache and
// Metrics are required.
func New(deps Dependencies, cfg config.PerformanceConfig, log logrus.FieldLogger, opts ...Option) (Engine, error) {
	switch {
	case deps.Processor == nil:
		return nil, errors.New("engine: image processor is required")
	case deps.Extractor == nil:
		return nil, errors.New("engine: feature extractor is required")
	case deps.Generator == nil:
		return nil, errors.New("engine: report generator is required")
	case deps.Optimizer == nil:
		return nil, errors.New("engine: conversion optimizer is required")
	case deps.Cache == nil:
		return nil, errors.New("engine: cache manager is required")
	case deps.Metrics == nil:
		return nil, errors.New("engine: metrics recorder is required")
	}
	if cfg.QuickAnalysisTimeout <= 0 {
		cfg.QuickAnalysisTimeout = 60 * time.Second
	}
	if cfg.FullAnalysisTimeout <= 0 {
		cfg.FullAnalysisTimeout = 180 * time.Second
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = 5 * time.Second
	}

	probe, err := probeImage()
	if err != nil {
		return nil, fmt.Errorf("engine: build health probe image: %w", err)
	}

	e := &engine{
		deps:  deps,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
		probe: probe,
		log:   log.WithField("component", "analysis_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type quickOutcome struct {
	result *models.QuickAnalysisResult
	err    error
}

func (e *engine) AnalyzeQuick(ctx context.Context, image models.ImageData, user models.UserInfo, userID string) (result *models.QuickAnalysisResult, err error) {
	start := e.now()
	run := e.newRun(metrics.AnalysisQuick, userID, start)
	run.transition(ctx, observer.StatePending, nil)

	defer func() {
		e.finish(ctx, run, err, false)
	}()

	if verr := user.Validate(); verr != nil {
		return nil, apperrors.NewValidationError("invalid user info", verr)
	}
	// Fail fast before anything reports extraction as started
	if verr := e.deps.Processor.Validate(image); verr != nil {
		return nil, verr
	}

	budget := e.cfg.QuickAnalysisTimeout
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan quickOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- quickOutcome{err: apperrors.NewInternalError(fmt.Sprintf("quick analysis panicked: %v", r), nil)}
			}
		}()
		res, err := e.runQuick(runCtx, run, image, user, userID)
		done <- quickOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if runCtx.Err() != nil {
				return nil, e.contextError(runCtx, budget, out.err)
			}
			return nil, out.err
		}
		return out.result, nil
	case <-runCtx.Done():
		return nil, e.contextError(runCtx, budget, runCtx.Err())
	}
}

// contextError maps a tripped budget to TIMEOUT_ERROR. Cancellation by the
// caller is reported as such.
func (e *engine) contextError(ctx context.Context, budget time.Duration, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(
			fmt.Sprintf("analysis exceeded %s budget", budget), budget.Milliseconds(), cause)
	}
	return apperrors.NewInternalError("analysis canceled", cause)
}

func (e *engine) runQuick(ctx context.Context, run *requestRun, image models.ImageData, user models.UserInfo, userID string) (*models.QuickAnalysisResult, error) {
	hash := e.deps.Processor.CalculateHash(image.Buffer)
	featureKey := cache.GenerateKey(cache.TypeImageFeatures, map[string]any{"hash": hash})

	features, cached := cache.Get[*models.PalmFeatures](ctx, e.deps.Cache, featureKey)
	run.transition(ctx, observer.StateExtractingFeatures, map[string]any{"features_cached": cached})

	if !cached || features == nil {
		extracted, err := e.extract(ctx, image)
		if err != nil {
			return nil, err
		}
		features = extracted
		cache.Set(ctx, e.deps.Cache, featureKey, features, 0)
	}

	run.transition(ctx, observer.StateGeneratingReport, map[string]any{"confidence": features.Confidence})
	quick, err := e.deps.Generator.GenerateQuickReport(ctx, features, user, userID)
	if err != nil {
		return nil, err
	}

	// End-to-end time; the optimizer and the cached copy both read it
	quick.Metadata.ProcessingTime = e.now().Sub(run.start).Milliseconds()

	run.transition(ctx, observer.StateOptimizing, map[string]any{"report_id": quick.Metadata.ID})
	hints := e.deps.Optimizer.Optimize(quick, user, userID)
	quick.ConversionHints = hints

	cache.Set(ctx, e.deps.Cache, quickReportKey(quick.Metadata.ID), quick, 0)

	return &models.QuickAnalysisResult{Report: quick, ConversionHints: hints}, nil
}

func (e *engine) extract(ctx context.Context, image models.ImageData) (*models.PalmFeatures, error) {
	processed, err := e.deps.Processor.Process(ctx, image)
	if err != nil {
		return nil, err
	}
	return e.deps.Extractor.Extract(ctx, models.ImageData{
		Buffer:   processed.Buffer,
		MimeType: "image/" + processed.Format,
		Size:     int64(len(processed.Buffer)),
		Width:    processed.Width,
		Height:   processed.Height,
	})
}

func (e *engine) AnalyzeComplete(ctx context.Context, quick *models.QuickReport, user models.UserInfo, userID string) (full *models.FullReport, err error) {
	start := e.now()
	run := e.newRun(metrics.AnalysisComplete, userID, start)
	run.transition(ctx, observer.StatePending, nil)

	cached := false
	defer func() {
		e.finish(ctx, run, err, cached)
	}()

	if quick == nil || quick.Metadata.ID == "" {
		return nil, apperrors.NewValidationError("a quick report with an id is required", nil)
	}

	key := fullReportKey(quick.Metadata.ID, userID)
	if hit, ok := cache.Get[*models.FullReport](ctx, e.deps.Cache, key); ok && hit != nil {
		cached = true
		return hit, nil
	}

	run.transition(ctx, observer.StateGeneratingReport, map[string]any{"report_id": quick.Metadata.ID})

	budget := e.cfg.FullAnalysisTimeout
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	full, err = e.deps.Generator.GenerateFullReport(runCtx, quick, user, userID)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, e.contextError(runCtx, budget, err)
		}
		return nil, err
	}

	cache.Set(ctx, e.deps.Cache, key, full, 0)
	return full, nil
}

func (e *engine) LoadQuickReport(ctx context.Context, reportID string) (*models.QuickReport, error) {
	if reportID == "" {
		return nil, apperrors.NewValidationError("report id is required", nil)
	}
	quick, ok := cache.Get[*models.QuickReport](ctx, e.deps.Cache, quickReportKey(reportID))
	if !ok || quick == nil {
		return nil, apperrors.NewNotFoundError("quick report not found or expired", nil).
			WithDetail("report_id", reportID)
	}
	return quick, nil
}

// finish records exactly one analysis metric per call and the terminal event
func (e *engine) finish(ctx context.Context, run *requestRun, err error, cached bool) {
	elapsed := e.now().Sub(run.start)
	rec := metrics.AnalysisRecord{
		Type:       run.analysis,
		UserID:     run.userID,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
		Cached:     cached,
	}

	if err == nil {
		e.deps.Metrics.RecordAnalysis(rec)
		run.transition(ctx, observer.StateDone, map[string]any{"cached": cached})
		return
	}

	rec.Error = err.Error()
	e.deps.Metrics.RecordAnalysis(rec)

	code := string(apperrors.CodeOf(err))
	if appErr, ok := apperrors.As(err); ok && appErr.Violation() != "" {
		code = appErr.Violation()
	}
	e.deps.Metrics.RecordError(metrics.ErrorRecord{
		Code:      code,
		Component: componentFor(apperrors.CodeOf(err)),
		Message:   err.Error(),
		UserID:    run.userID,
	})

	meta := map[string]any{}
	if appErr, ok := apperrors.As(err); ok {
		for k, v := range appErr.Details {
			meta[k] = v
		}
	}
	run.fail(ctx, code, meta)
}

func componentFor(code apperrors.Code) string {
	switch code {
	case apperrors.CodeImageProcessing:
		return "image_processor"
	case apperrors.CodeFeatureExtraction:
		return "feature_extractor"
	case apperrors.CodeReportGeneration, apperrors.CodeAIService:
		return "report_generator"
	case apperrors.CodeValidation:
		return "request"
	default:
		return "analysis_engine"
	}
}

func quickReportKey(reportID string) string {
	return cache.GenerateKey(cache.TypeQuickReport, map[string]any{"report_id": reportID})
}

func fullReportKey(reportID, userID string) string {
	return cache.GenerateKey(cache.TypeFullReport, map[string]any{"report_id": reportID, "user_id": userID})
}
