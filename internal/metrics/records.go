package metrics

import "time"

// Analysis kinds
const (
	AnalysisQuick    = "quick"
	AnalysisComplete = "complete"
)

// AnalysisRecord is emitted once per analysis call regardless of outcome
type AnalysisRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Cached     bool      `json:"cached"`
}

// ConversionRecord is a completed purchase attributed to a report
type ConversionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	ReportID  string    `json:"report_id"`
	Strategy  string    `json:"strategy"`
	Variant   string    `json:"variant"`
	Amount    float64   `json:"amount"`
}

type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id,omitempty"`
}

type SessionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
}

type CacheRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Tier       string    `json:"tier"`
	Hit        bool      `json:"hit"`
	DurationMs float64   `json:"duration_ms"`
}

// RealTimeStats summarize the most recent window
type RealTimeStats struct {
	WindowStart     time.Time `json:"window_start"`
	UpdatedAt       time.Time `json:"updated_at"`
	Analyses        int       `json:"analyses"`
	Failures        int       `json:"failures"`
	Errors          int       `json:"errors"`
	AvgProcessingMs float64   `json:"avg_processing_ms"`
	ErrorRate       float64   `json:"error_rate"`
	CacheHitRate    float64   `json:"cache_hit_rate"`
	ActiveUsers     int       `json:"active_users"`
}

// DailyStats accumulate since the last UTC midnight
type DailyStats struct {
	Date        string  `json:"date"`
	Analyses    int     `json:"analyses"`
	Failures    int     `json:"failures"`
	Conversions int     `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	Sessions    int     `json:"sessions"`
	UniqueUsers int     `json:"unique_users"`
}

// PerformanceMetrics cover the last hour
type PerformanceMetrics struct {
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	SuccessRate         float64 `json:"success_rate"`
	ErrorRate           float64 `json:"error_rate"`
	TotalAnalyses       int     `json:"total_analyses"`
}

// BusinessMetrics cover the current UTC day
type BusinessMetrics struct {
	Date              string  `json:"date"`
	ConversionRate    float64 `json:"conversion_rate"`
	AverageOrderValue float64 `json:"average_order_value"`
	UniqueUsers       int     `json:"unique_users"`
	Revenue           float64 `json:"revenue"`
	Conversions       int     `json:"conversions"`
	Sessions          int     `json:"sessions"`
}
