package models

import "time"

// Dimension names one of the five independent analysis dimensions
type Dimension string

const (
	DimensionPersonality  Dimension = "personality"
	DimensionHealth       Dimension = "health"
	DimensionCareer       Dimension = "career"
	DimensionRelationship Dimension = "relationship"
	DimensionFortune      Dimension = "fortune"
)

// Dimensions lists every analysis dimension in report order
var Dimensions = []Dimension{
	DimensionPersonality,
	DimensionHealth,
	DimensionCareer,
	DimensionRelationship,
	DimensionFortune,
}

type PersonalityAnalysis struct {
	Summary    string   `json:"summary"`
	Traits     []string `json:"traits"`
	Strengths  []string `json:"strengths"`
	Challenges []string `json:"challenges"`
}

type HealthAnalysis struct {
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Concerns        []string `json:"concerns"`
	Recommendations []string `json:"recommendations"`
}

type CareerAnalysis struct {
	Summary        string   `json:"summary"`
	SuitableFields []string `json:"suitable_fields"`
	Strengths      []string `json:"strengths"`
	Advice         []string `json:"advice"`
}

type RelationshipAnalysis struct {
	Summary       string   `json:"summary"`
	Traits        []string `json:"traits"`
	Compatibility []string `json:"compatibility"`
	Advice        []string `json:"advice"`
}

type FortuneAnalysis struct {
	Summary       string   `json:"summary"`
	LuckyElements []string `json:"lucky_elements"`
	Opportunities []string `json:"opportunities"`
	Cautions      []string `json:"cautions"`
}

type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

// ConversionHints steer the upsell from a quick report to a full report.
// They are recomputed for every quick analysis.
type ConversionHints struct {
	HighlightedDimensions []Dimension  `json:"highlighted_dimensions"`
	PersonalizedMessage   string       `json:"personalized_message"`
	UrgencyLevel          UrgencyLevel `json:"urgency_level"`
	DiscountPercentage    *int         `json:"discount_percentage,omitempty"`
	Strategy              string       `json:"strategy,omitempty"`
	Variant               string       `json:"variant,omitempty"`
	ValidUntil            *time.Time   `json:"valid_until,omitempty"`
}

type ReportMetadata struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	Language       string    `json:"language"`
	Version        string    `json:"version"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// QuickReport is the latency-bounded first tier output
type QuickReport struct {
	Personality     PersonalityAnalysis  `json:"personality"`
	Health          HealthAnalysis       `json:"health"`
	Career          CareerAnalysis       `json:"career"`
	Relationship    RelationshipAnalysis `json:"relationship"`
	Fortune         FortuneAnalysis      `json:"fortune"`
	ConversionHints ConversionHints      `json:"conversion_hints"`
	Metadata        ReportMetadata       `json:"metadata"`
}

// Summary returns the free-text summary of one dimension
func (r *QuickReport) Summary(d Dimension) string {
	switch d {
	case DimensionPersonality:
		return r.Personality.Summary
	case DimensionHealth:
		return r.Health.Summary
	case DimensionCareer:
		return r.Career.Summary
	case DimensionRelationship:
		return r.Relationship.Summary
	case DimensionFortune:
		return r.Fortune.Summary
	}
	return ""
}

type DetailedAnalysis struct {
	Personality   string `json:"personality"`
	Career        string `json:"career"`
	Relationships string `json:"relationships"`
	Health        string `json:"health"`
}

type Recommendations struct {
	Daily   []string `json:"daily"`
	Weekly  []string `json:"weekly"`
	Monthly []string `json:"monthly"`
	Yearly  []string `json:"yearly"`
}

type FutureInsights struct {
	NextThreeMonths string   `json:"next_three_months"`
	NextYear        string   `json:"next_year"`
	LongTerm        string   `json:"long_term"`
	KeyPeriods      []string `json:"key_periods"`
}

type Compatibility struct {
	BestMatches []string `json:"best_matches"`
	Challenging []string `json:"challenging"`
	Advice      []string `json:"advice"`
}

type DailyGuidance struct {
	Date         string   `json:"date"`
	Guidance     string   `json:"guidance"`
	LuckyNumbers []int    `json:"lucky_numbers"`
	LuckyColors  []string `json:"lucky_colors"`
}

type MonthlyForecast struct {
	Month  string `json:"month"`
	Theme  string `json:"theme"`
	Focus  string `json:"focus"`
	Energy string `json:"energy"`
	Advice string `json:"advice"`
}

type QuarterOutlook struct {
	Quarter int    `json:"quarter"`
	Theme   string `json:"theme"`
	Focus   string `json:"focus"`
	Advice  string `json:"advice"`
}

type YearlyOutlook struct {
	Year     int               `json:"year"`
	Theme    string            `json:"theme"`
	Overview string            `json:"overview"`
	Quarters [4]QuarterOutlook `json:"quarters"`
}

// FullReport extends a QuickReport with long-form and time-series content.
// It is always derived from a QuickReport.
type FullReport struct {
	QuickReport
	DetailedAnalysis DetailedAnalysis  `json:"detailed_analysis"`
	Recommendations  Recommendations   `json:"recommendations"`
	FutureInsights   FutureInsights    `json:"future_insights"`
	Compatibility    Compatibility     `json:"compatibility"`
	DailyGuidance    []DailyGuidance   `json:"daily_guidance"`
	MonthlyForecast  []MonthlyForecast `json:"monthly_forecast"`
	YearlyOutlook    YearlyOutlook     `json:"yearly_outlook"`
	GeneratedAt      time.Time         `json:"generated_at"`
}

// QuickAnalysisResult is the output of a quick analysis
type QuickAnalysisResult struct {
	Report          *QuickReport    `json:"report"`
	ConversionHints ConversionHints `json:"conversion_hints"`
}
