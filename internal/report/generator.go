package report

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-palm-insight/internal/aiclient"
	"go-palm-insight/internal/analyzer"
	"go-palm-insight/internal/cache"
	"go-palm-insight/internal/config"
	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/pkg/models"
)

// ReportVersion is stamped into every report's metadata
const ReportVersion = "1.0"

// Generator turns palm features into reports
type Generator interface {
	GenerateQuickReport(ctx context.Context, features *models.PalmFeatures, user models.UserInfo, userID string) (*models.QuickReport, error)
	GenerateFullReport(ctx context.Context, quick *models.QuickReport, user models.UserInfo, userID string) (*models.FullReport, error)
}

type generator struct {
	text      aiclient.TextGenerator
	responses *cache.Manager
	opts      aiclient.GenerateOptions
	now       func() time.Time
	newID     func() string
	log       logrus.FieldLogger
}

// Option configures a Generator
type Option func(*generator)

// WithResponseCache reuses generated text for identical prompts
func WithResponseCache(m *cache.Manager) Option {
	return func(g *generator) { g.responses = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *generator) { g.now = now }
}

// WithIDGenerator replaces the report id source
func WithIDGenerator(newID func() string) Option {
	return func(g *generator) { g.newID = newID }
}

// NewGenerator creates a report generator over a text-generation capability
func NewGenerator(text aiclient.TextGenerator, cfg config.AIConfig, log logrus.FieldLogger, opts ...Option) Generator {
	g := &generator{
		text: text,
		opts: aiclient.GenerateOptions{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		now:   time.Now,
		newID: uuid.NewString,
		log:   log.WithField("component", "report_generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateQuickReport generates the five dimensions concurrently. One failed
// dimension fails the whole report.
func (g *generator) GenerateQuickReport(ctx context.Context, features *models.PalmFeatures, user models.UserInfo, userID string) (*models.QuickReport, error) {
	if features == nil {
		return nil, apperrors.NewReportGenerationError("palm features are required", nil)
	}
	start := g.now()
	now := start.UTC()
	report := &models.QuickReport{}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, d := range models.Dimensions {
		prompt := dimensionPrompt(d, features, user, now)
		eg.Go(func() error {
			var err error
			switch d {
			case models.DimensionPersonality:
				err = g.generateInto(egCtx, prompt, userID, &report.Personality)
				if err == nil {
					err = cleanPersonality(&report.Personality)
				}
			case models.DimensionHealth:
				err = g.generateInto(egCtx, prompt, userID, &report.Health)
				if err == nil {
					err = cleanHealth(&report.Health)
				}
			case models.DimensionCareer:
				err = g.generateInto(egCtx, prompt, userID, &report.Career)
				if err == nil {
					err = cleanCareer(&report.Career)
				}
			case models.DimensionRelationship:
				err = g.generateInto(egCtx, prompt, userID, &report.Relationship)
				if err == nil {
					err = cleanRelationship(&report.Relationship)
				}
			case models.DimensionFortune:
				err = g.generateInto(egCtx, prompt, userID, &report.Fortune)
				if err == nil {
					err = cleanFortune(&report.Fortune)
				}
			}
			if err != nil {
				return &sectionError{section: string(d), err: err}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, g.wrap("quick report generation failed", userID, err)
	}

	report.Metadata = models.ReportMetadata{
		ID:             g.newID(),
		UserID:         userID,
		CreatedAt:      now,
		Language:       user.Lang(),
		Version:        ReportVersion,
		ProcessingTime: g.now().Sub(start).Milliseconds(),
	}

	g.log.WithFields(logrus.Fields{
		"report_id":          report.Metadata.ID,
		"user_id":            userID,
		"synthetic_lines":    features.Lines.Synthetic(),
		"processing_time_ms": report.Metadata.ProcessingTime,
	}).Info("Quick report generated")

	return report, nil
}

// GenerateFullReport extends quick with long-form content. Features are
// re-derived from the quick report id, so the same quick report always yields
// the same feature-driven content.
func (g *generator) GenerateFullReport(ctx context.Context, quick *models.QuickReport, user models.UserInfo, userID string) (*models.FullReport, error) {
	if quick == nil || quick.Metadata.ID == "" {
		return nil, apperrors.NewReportGenerationError("quick report with an id is required", nil)
	}
	start := g.now()
	now := start.UTC()
	features := analyzer.SyntheticFeatures(SeedFromID(quick.Metadata.ID))

	full := &models.FullReport{QuickReport: *quick}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		prompt := fullPrompt(detailedSection, quick, features, user, now)
		if err := g.generateInto(egCtx, prompt, userID, &full.DetailedAnalysis); err != nil {
			return &sectionError{section: detailedSection.name, err: err}
		}
		if err := requireText("detailed personality", full.DetailedAnalysis.Personality); err != nil {
			return &sectionError{section: detailedSection.name, err: err}
		}
		return nil
	})
	eg.Go(func() error {
		prompt := fullPrompt(recommendationsSection, quick, features, user, now)
		if err := g.generateInto(egCtx, prompt, userID, &full.Recommendations); err != nil {
			return &sectionError{section: recommendationsSection.name, err: err}
		}
		r := &full.Recommendations
		r.Daily, r.Weekly, r.Monthly, r.Yearly = dedupe(r.Daily), dedupe(r.Weekly), dedupe(r.Monthly), dedupe(r.Yearly)
		return nil
	})
	eg.Go(func() error {
		prompt := fullPrompt(futureSection, quick, features, user, now)
		if err := g.generateInto(egCtx, prompt, userID, &full.FutureInsights); err != nil {
			return &sectionError{section: futureSection.name, err: err}
		}
		full.FutureInsights.KeyPeriods = dedupe(full.FutureInsights.KeyPeriods)
		return nil
	})
	eg.Go(func() error {
		prompt := fullPrompt(compatibilitySection, quick, features, user, now)
		if err := g.generateInto(egCtx, prompt, userID, &full.Compatibility); err != nil {
			return &sectionError{section: compatibilitySection.name, err: err}
		}
		c := &full.Compatibility
		c.BestMatches, c.Challenging, c.Advice = dedupe(c.BestMatches), dedupe(c.Challenging), dedupe(c.Advice)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, g.wrap("full report generation failed", userID, err)
	}

	full.DailyGuidance = dailyGuidance(features, now)
	full.MonthlyForecast = monthlyForecast(features, now)
	full.YearlyOutlook = yearlyOutlook(features, now)
	full.GeneratedAt = now

	g.log.WithFields(logrus.Fields{
		"report_id":          quick.Metadata.ID,
		"user_id":            userID,
		"processing_time_ms": g.now().Sub(start).Milliseconds(),
	}).Info("Full report generated")

	return full, nil
}

// generateInto calls the text generator, consulting the response cache first,
// and decodes the JSON answer into v
func (g *generator) generateInto(ctx context.Context, prompt, userID string, v any) error {
	var key string
	if g.responses != nil {
		key = cache.GenerateKey(cache.TypeAIResponse, map[string]any{
			"prompt":      prompt,
			"temperature": g.opts.Temperature,
			"max_tokens":  g.opts.MaxTokens,
		})
		if text, ok := cache.Get[string](ctx, g.responses, key); ok {
			if err := decodeObject(text, v); err == nil {
				return nil
			}
		}
	}

	opts := g.opts
	opts.UserID = userID
	text, err := g.text.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if err := decodeObject(text, v); err != nil {
		return err
	}
	if g.responses != nil {
		cache.Set(ctx, g.responses, key, text, 0)
	}
	return nil
}

func (g *generator) wrap(msg, userID string, err error) error {
	appErr := apperrors.NewReportGenerationError(msg, err)
	var se *sectionError
	if errors.As(err, &se) {
		appErr.WithDetail("section", se.section)
	}
	g.log.WithFields(logrus.Fields{
		"user_id": userID,
		"error":   err.Error(),
	}).Error(msg)
	return appErr
}

// sectionError names the report section whose generation failed
type sectionError struct {
	section string
	err     error
}

func (e *sectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.section, e.err)
}

func (e *sectionError) Unwrap() error {
	return e.err
}

// SeedFromID maps a report id to a stable seed
func SeedFromID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func cleanPersonality(p *models.PersonalityAnalysis) error {
	p.Traits, p.Strengths, p.Challenges = dedupe(p.Traits), dedupe(p.Strengths), dedupe(p.Challenges)
	return requireText("personality summary", p.Summary)
}

func cleanHealth(h *models.HealthAnalysis) error {
	h.Strengths, h.Concerns, h.Recommendations = dedupe(h.Strengths), dedupe(h.Concerns), dedupe(h.Recommendations)
	return requireText("health summary", h.Summary)
}

func cleanCareer(c *models.CareerAnalysis) error {
	c.SuitableFields, c.Strengths, c.Advice = dedupe(c.SuitableFields), dedupe(c.Strengths), dedupe(c.Advice)
	return requireText("career summary", c.Summary)
}

func cleanRelationship(r *models.RelationshipAnalysis) error {
	r.Traits, r.Compatibility, r.Advice = dedupe(r.Traits), dedupe(r.Compatibility), dedupe(r.Advice)
	return requireText("relationship summary", r.Summary)
}

func cleanFortune(f *models.FortuneAnalysis) error {
	f.LuckyElements, f.Opportunities, f.Cautions = dedupe(f.LuckyElements), dedupe(f.Opportunities), dedupe(f.Cautions)
	return requireText("fortune summary", f.Summary)
}
