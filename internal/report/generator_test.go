package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-palm-insight/internal/aiclient"
	"go-palm-insight/internal/analyzer"
	"go-palm-insight/internal/cache"
	"go-palm-insight/internal/config"
	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/internal/logger"
	"go-palm-insight/pkg/models"
)

// fakeText answers like the static generator and can be told to fail on
// prompts containing a marker
type fakeText struct {
	static   *aiclient.StaticGenerator
	calls    atomic.Int32
	failOn   string
	override string
	delay    time.Duration

	mu      sync.Mutex
	prompts []string
}

func newFakeText() *fakeText {
	return &fakeText{static: aiclient.NewStaticGenerator()}
}

func (f *fakeText) Generate(ctx context.Context, prompt string, opts aiclient.GenerateOptions) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return "", apperrors.NewAIServiceError("backend unavailable", nil)
	}
	if f.override != "" {
		return f.override, nil
	}
	return f.static.Generate(ctx, prompt, opts)
}

func (f *fakeText) Complete(ctx context.Context, req aiclient.CompletionRequest) (*aiclient.Completion, error) {
	return f.static.Complete(ctx, req)
}

func (f *fakeText) Ping(context.Context) error { return nil }

func testUser() models.UserInfo {
	return models.UserInfo{
		BirthDate: time.Date(1995, 7, 28, 0, 0, 0, 0, time.UTC),
		Gender:    models.GenderFemale,
		Language:  "en",
	}
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestGenerator(text aiclient.TextGenerator, opts ...Option) Generator {
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "report-123" }),
	}, opts...)
	return NewGenerator(text, config.AIConfig{Temperature: 0.7, MaxTokens: 800}, logger.Discard(), opts...)
}

func TestGenerateQuickReport_AllDimensions(t *testing.T) {
	text := newFakeText()
	gen := newTestGenerator(text)

	report, err := gen.GenerateQuickReport(context.Background(), analyzer.SyntheticFeatures(7), testUser(), "user-1")
	if err != nil {
		t.Fatalf("GenerateQuickReport: %v", err)
	}

	if got := text.calls.Load(); got != 5 {
		t.Errorf("expected 5 generation calls, got %d", got)
	}
	for _, d := range models.Dimensions {
		if report.Summary(d) == "" {
			t.Errorf("dimension %s has an empty summary", d)
		}
	}
	if len(report.Career.SuitableFields) == 0 || len(report.Fortune.LuckyElements) == 0 {
		t.Error("expected list fields to be populated")
	}

	md := report.Metadata
	if md.ID != "report-123" || md.UserID != "user-1" || md.Language != "en" || md.Version != ReportVersion {
		t.Errorf("unexpected metadata %+v", md)
	}
	if !md.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", md.CreatedAt, fixedNow)
	}
}

func TestGenerateQuickReport_PromptsProjectFeatures(t *testing.T) {
	text := newFakeText()
	gen := newTestGenerator(text)
	user := testUser()
	user.BirthLocation = "Lisbon"

	if _, err := gen.GenerateQuickReport(context.Background(), analyzer.SyntheticFeatures(7), user, "user-1"); err != nil {
		t.Fatalf("GenerateQuickReport: %v", err)
	}

	text.mu.Lock()
	defer text.mu.Unlock()

	var sawHealth, sawCareer bool
	for _, p := range text.prompts {
		if !strings.Contains(p, aiclient.FieldsDirective) {
			t.Errorf("prompt is missing the fields directive:\n%s", p)
		}
		if !strings.Contains(p, "Age: 30") || !strings.Contains(p, "Born in: Lisbon") {
			t.Errorf("prompt is missing user context:\n%s", p)
		}
		if strings.Contains(p, "Do not give medical advice") {
			sawHealth = true
			if !strings.Contains(p, "Life line") {
				t.Error("health prompt should describe the life line")
			}
		}
		if strings.Contains(p, "suitable_fields (list)") {
			sawCareer = true
			if !strings.Contains(p, "Fate line") {
				t.Error("career prompt should describe the fate line")
			}
		}
	}
	if !sawHealth || !sawCareer {
		t.Error("expected both health and career prompts")
	}
}

func TestGenerateQuickReport_OneDimensionFailsWholeReport(t *testing.T) {
	text := newFakeText()
	text.failOn = "Do not give medical advice"
	gen := newTestGenerator(text)

	report, err := gen.GenerateQuickReport(context.Background(), analyzer.SyntheticFeatures(7), testUser(), "user-1")
	if report != nil {
		t.Error("expected no partial report")
	}
	if !apperrors.IsCode(err, apperrors.CodeReportGeneration) {
		t.Fatalf("expected REPORT_GENERATION_ERROR, got %v", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeAIService) {
		t.Error("expected the AI_SERVICE_ERROR cause to stay observable")
	}
	appErr, _ := apperrors.As(err)
	if appErr.Details["section"] != "health" {
		t.Errorf("section detail = %v, want health", appErr.Details["section"])
	}
}

func TestGenerateQuickReport_UnparseableResponse(t *testing.T) {
	text := newFakeText()
	text.override = "I cannot read palms today."
	gen := newTestGenerator(text)

	_, err := gen.GenerateQuickReport(context.Background(), analyzer.SyntheticFeatures(7), testUser(), "user-1")
	if !apperrors.IsCode(err, apperrors.CodeReportGeneration) {
		t.Fatalf("expected REPORT_GENERATION_ERROR, got %v", err)
	}
	if !errors.Is(err, errNoJSONObject) {
		t.Errorf("expected errNoJSONObject in chain, got %v", err)
	}
}

func TestGenerateQuickReport_EmptySummaryRejected(t *testing.T) {
	text := newFakeText()
	text.override = `{"summary": "   ", "traits": ["a"]}`
	gen := newTestGenerator(text)

	_, err := gen.GenerateQuickReport(context.Background(), analyzer.SyntheticFeatures(7), testUser(), "user-1")
	if !apperrors.IsCode(err, apperrors.CodeReportGeneration) {
		t.Fatalf("expected REPORT_GENERATION_ERROR, got %v", err)
	}
}

func TestGenerateQuickReport_CanceledContext(t *testing.T) {
	text := newFakeText()
	text.delay = time.Second
	gen := newTestGenerator(text)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := gen.GenerateQuickReport(ctx, analyzer.SyntheticFeatures(7), testUser(), "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("generation did not stop on cancellation")
	}
}

func TestGenerateQuickReport_ResponseCache(t *testing.T) {
	text := newFakeText()
	responses := cache.NewManager(config.CacheConfig{L1MaxEntries: 100, TTL: config.CacheTTL{AIResponse: time.Hour}}, logger.Discard())
	defer responses.Close()
	gen := newTestGenerator(text, WithResponseCache(responses))

	features := analyzer.SyntheticFeatures(7)
	first, err := gen.GenerateQuickReport(context.Background(), features, testUser(), "user-1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := gen.GenerateQuickReport(context.Background(), features, testUser(), "user-1")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if got := text.calls.Load(); got != 5 {
		t.Errorf("expected cached responses on the second run, got %d calls", got)
	}
	if first.Personality.Summary != second.Personality.Summary {
		t.Error("cached response differs from generated response")
	}
}

func TestGenerateFullReport(t *testing.T) {
	text := newFakeText()
	gen := newTestGenerator(text)

	quick, err := gen.GenerateQuickReport(context.Background(), analyzer.SyntheticFeatures(7), testUser(), "user-1")
	if err != nil {
		t.Fatalf("quick: %v", err)
	}
	text.calls.Store(0)

	full, err := gen.GenerateFullReport(context.Background(), quick, testUser(), "user-1")
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if got := text.calls.Load(); got != 4 {
		t.Errorf("expected 4 generation calls, got %d", got)
	}
	if full.Metadata.ID != quick.Metadata.ID || full.Personality.Summary != quick.Personality.Summary {
		t.Error("full report must extend the quick report")
	}
	if full.DetailedAnalysis.Personality == "" || full.FutureInsights.NextYear == "" {
		t.Error("expected long-form sections")
	}
	if len(full.Recommendations.Daily) == 0 || len(full.Compatibility.BestMatches) == 0 {
		t.Error("expected list sections")
	}
	if len(full.DailyGuidance) != 7 {
		t.Errorf("expected 7 days of guidance, got %d", len(full.DailyGuidance))
	}
	if full.DailyGuidance[0].Date != "2026-03-14" || full.DailyGuidance[6].Date != "2026-03-20" {
		t.Errorf("unexpected guidance dates %s..%s", full.DailyGuidance[0].Date, full.DailyGuidance[6].Date)
	}
	if len(full.MonthlyForecast) != 12 || full.MonthlyForecast[0].Month != "2026-03" || full.MonthlyForecast[11].Month != "2027-02" {
		t.Errorf("unexpected forecast %+v", full.MonthlyForecast)
	}
	if full.YearlyOutlook.Year != 2026 {
		t.Errorf("Year = %d", full.YearlyOutlook.Year)
	}
	for i, q := range full.YearlyOutlook.Quarters {
		if q.Quarter != i+1 || q.Theme == "" || q.Advice == "" {
			t.Errorf("quarter %d incomplete: %+v", i, q)
		}
	}
}

func TestGenerateFullReport_DeterministicForSameQuickReport(t *testing.T) {
	gen := newTestGenerator(newFakeText())
	quick := &models.QuickReport{Metadata: models.ReportMetadata{ID: "abc"}}
	quick.Personality.Summary = "Calm and deliberate."

	a, err := gen.GenerateFullReport(context.Background(), quick, testUser(), "u")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := gen.GenerateFullReport(context.Background(), quick, testUser(), "u")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	for i := range a.DailyGuidance {
		if a.DailyGuidance[i].Guidance != b.DailyGuidance[i].Guidance {
			t.Fatalf("guidance diverged on day %d", i)
		}
	}
	if a.YearlyOutlook != b.YearlyOutlook {
		t.Error("yearly outlook diverged")
	}
	if a.DetailedAnalysis != b.DetailedAnalysis {
		t.Error("detailed analysis diverged")
	}
}

func TestGenerateFullReport_RequiresQuickReportID(t *testing.T) {
	gen := newTestGenerator(newFakeText())
	_, err := gen.GenerateFullReport(context.Background(), &models.QuickReport{}, testUser(), "u")
	if !apperrors.IsCode(err, apperrors.CodeReportGeneration) {
		t.Fatalf("expected REPORT_GENERATION_ERROR, got %v", err)
	}
}

func TestGenerateFullReport_SectionFailure(t *testing.T) {
	text := newFakeText()
	text.failOn = "best_matches (list)"
	gen := newTestGenerator(text)
	quick := &models.QuickReport{Metadata: models.ReportMetadata{ID: "abc"}}

	full, err := gen.GenerateFullReport(context.Background(), quick, testUser(), "u")
	if full != nil {
		t.Error("expected no partial report")
	}
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.CodeReportGeneration {
		t.Fatalf("expected REPORT_GENERATION_ERROR, got %v", err)
	}
	if appErr.Details["section"] != "compatibility" {
		t.Errorf("section = %v", appErr.Details["section"])
	}
}
