package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is assembled once at startup and passed down to every component
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Server      ServerConfig      `yaml:"server"`
	Performance PerformanceConfig `yaml:"performance"`
	Image       ImageConfig       `yaml:"image"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	AI          AIConfig          `yaml:"ai"`
	Cache       CacheConfig       `yaml:"cache"`
	Conversion  ConversionConfig  `yaml:"conversion"`
	Alerts      AlertConfig       `yaml:"alerts"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Policy      PolicyConfig      `yaml:"policy"`
	Storage     StorageConfig     `yaml:"storage"`
}

type ServerConfig struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ImageFetchTimeout  time.Duration `yaml:"image_fetch_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
}

type PerformanceConfig struct {
	QuickAnalysisTimeout time.Duration `yaml:"quick_analysis_timeout"`
	FullAnalysisTimeout  time.Duration `yaml:"full_analysis_timeout"`
	HealthCheckTimeout   time.Duration `yaml:"health_check_timeout"`
}

type ImageConfig struct {
	MaxSizeBytes     int64    `yaml:"max_size_bytes"`
	AllowedMIMETypes []string `yaml:"allowed_mime_types"`
	MinWidth         int      `yaml:"min_width"`
	MinHeight        int      `yaml:"min_height"`
	MaxWidth         int      `yaml:"max_width"`
	MaxHeight        int      `yaml:"max_height"`
	// Images larger than this are resized to fit inside it
	ProcessMaxWidth  int      `yaml:"process_max_width"`
	ProcessMaxHeight int      `yaml:"process_max_height"`
	JPEGQuality      int      `yaml:"jpeg_quality"`
	EnhancementSteps []string `yaml:"enhancement_steps"`
}

type ExtractionConfig struct {
	MinLinePoints   int  `yaml:"min_line_points"`
	StrictDetection bool `yaml:"strict_detection"`
	Workers         int  `yaml:"workers"`
}

// ProviderKind selects the text-generation backend once at construction
type ProviderKind string

const (
	ProviderOpenAICompatible ProviderKind = "openai"
	ProviderStatic           ProviderKind = "static"
)

type AIConfig struct {
	Provider       ProviderKind  `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

type CacheConfig struct {
	RedisURL      string        `yaml:"redis_url"`
	KeyPrefix     string        `yaml:"key_prefix"`
	L1MaxEntries  int           `yaml:"l1_max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	TTL           CacheTTL      `yaml:"ttl"`
}

// CacheTTL holds the default lifetime per cache entry type
type CacheTTL struct {
	ImageFeatures time.Duration `yaml:"image_features"`
	QuickReport   time.Duration `yaml:"quick_report"`
	FullReport    time.Duration `yaml:"full_report"`
	AIResponse    time.Duration `yaml:"ai_response"`
	Default       time.Duration `yaml:"default"`
}

type StrategyConfig struct {
	Message            string        `yaml:"message"`
	DiscountPercentage int           `yaml:"discount_percentage"`
	Validity           time.Duration `yaml:"validity"`
}

// Variant is one arm of the conversion A/B test. Traffic is a percentage.
// An empty Strategy lets the optimizer pick by report quality.
type Variant struct {
	Name     string `yaml:"name"`
	Traffic  int    `yaml:"traffic"`
	Strategy string `yaml:"strategy"`
}

type ConversionConfig struct {
	Personalized        StrategyConfig `yaml:"personalized"`
	Discount            StrategyConfig `yaml:"discount"`
	Urgency             StrategyConfig `yaml:"urgency"`
	MinSummaryLength    int            `yaml:"min_summary_length"`
	Variants            []Variant      `yaml:"variants"`
	DefaultMessage      string         `yaml:"default_message"`
	PersonalizedQuality float64        `yaml:"personalized_quality"`
	DiscountQuality     float64        `yaml:"discount_quality"`
}

type AlertConfig struct {
	MaxResponseTime          time.Duration `yaml:"max_response_time"`
	MaxErrorRate             float64       `yaml:"max_error_rate"`
	MinConversionRate        float64       `yaml:"min_conversion_rate"`
	MinSessionsForConversion int           `yaml:"min_sessions_for_conversion"`
	Cooldown                 time.Duration `yaml:"cooldown"`
}

type MetricsConfig struct {
	Retention       time.Duration `yaml:"retention"`
	RealtimeWindow  time.Duration `yaml:"realtime_window"`
	RealtimeRefresh time.Duration `yaml:"realtime_refresh"`
	PruneInterval   time.Duration `yaml:"prune_interval"`
	Namespace       string        `yaml:"namespace"`
}

// PolicyConfig is declared here and enforced by collaborators outside the pipeline
type PolicyConfig struct {
	ImageRetention     time.Duration `yaml:"image_retention"`
	ReportRetention    time.Duration `yaml:"report_retention"`
	EncryptionEnabled  bool          `yaml:"encryption_enabled"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

type StorageConfig struct {
	AzureAccountName string `yaml:"azure_account_name"`
	AzureAccountKey  string `yaml:"azure_account_key"`
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Server.Host)
	port := strings.TrimSpace(c.Server.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               "8080",
			RequestTimeout:     90 * time.Second,
			ImageFetchTimeout:  15 * time.Second,
			MaxRequestBodySize: 50 * 1024 * 1024,
		},
		Performance: PerformanceConfig{
			QuickAnalysisTimeout: 60 * time.Second,
			FullAnalysisTimeout:  180 * time.Second,
			HealthCheckTimeout:   5 * time.Second,
		},
		Image: ImageConfig{
			MaxSizeBytes:     10 * 1024 * 1024,
			AllowedMIMETypes: []string{"image/jpeg", "image/png", "image/webp"},
			MinWidth:         200,
			MinHeight:        200,
			MaxWidth:         8000,
			MaxHeight:        8000,
			ProcessMaxWidth:  2048,
			ProcessMaxHeight: 2048,
			JPEGQuality:      85,
			EnhancementSteps: []string{"normalize", "sharpen", "denoise"},
		},
		Extraction: ExtractionConfig{
			MinLinePoints: 10,
			Workers:       4,
		},
		AI: AIConfig{
			Provider:       ProviderStatic,
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1200,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     2,
		},
		Cache: CacheConfig{
			KeyPrefix:     "palm:",
			L1MaxEntries:  1000,
			SweepInterval: 5 * time.Minute,
			TTL: CacheTTL{
				ImageFeatures: 24 * time.Hour,
				QuickReport:   2 * time.Hour,
				FullReport:    7 * 24 * time.Hour,
				AIResponse:    time.Hour,
				Default:       30 * time.Minute,
			},
		},
		Conversion: ConversionConfig{
			Personalized: StrategyConfig{
				Message:            "Your {dimension} reading stands out. Unlock the complete analysis with {discount}% off for the next {hours} hours.",
				DiscountPercentage: 15,
				Validity:           48 * time.Hour,
			},
			Discount: StrategyConfig{
				Message:            "There is more in your {dimension} lines. Get the full report today at {discount}% off.",
				DiscountPercentage: 25,
				Validity:           24 * time.Hour,
			},
			Urgency: StrategyConfig{
				Message:            "Your full palm reading is ready. This {discount}% offer expires in {hours} hours.",
				DiscountPercentage: 10,
				Validity:           2 * time.Hour,
			},
			MinSummaryLength:    80,
			DefaultMessage:      "Unlock your complete palm reading for deeper insights.",
			PersonalizedQuality: 0.8,
			DiscountQuality:     0.6,
			Variants: []Variant{
				{Name: "control", Traffic: 50},
				{Name: "urgency_first", Traffic: 25, Strategy: "urgency"},
				{Name: "discount_first", Traffic: 25, Strategy: "discount"},
			},
		},
		Alerts: AlertConfig{
			MaxResponseTime:          45 * time.Second,
			MaxErrorRate:             0.1,
			MinConversionRate:        0.02,
			MinSessionsForConversion: 10,
			Cooldown:                 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Retention:       24 * time.Hour,
			RealtimeWindow:  5 * time.Minute,
			RealtimeRefresh: time.Minute,
			PruneInterval:   time.Hour,
			Namespace:       "palm",
		},
		Policy: PolicyConfig{
			ImageRetention:     0,
			ReportRetention:    30 * 24 * time.Hour,
			EncryptionEnabled:  true,
			RateLimitPerMinute: 30,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment overrides, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// Unmarshal onto the defaults so absent keys keep their values
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.Server.Host = getEnvOrDefault("HOST", c.Server.Host)
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", c.Server.ImageFetchTimeout)
	c.Server.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", c.Server.MaxRequestBodySize)

	c.Performance.QuickAnalysisTimeout = parseDurationOrDefault("QUICK_ANALYSIS_TIMEOUT", c.Performance.QuickAnalysisTimeout)
	c.Performance.FullAnalysisTimeout = parseDurationOrDefault("FULL_ANALYSIS_TIMEOUT", c.Performance.FullAnalysisTimeout)

	c.Image.MaxSizeBytes = parseIntOrDefault("IMAGE_MAX_SIZE_BYTES", c.Image.MaxSizeBytes)
	c.Extraction.StrictDetection = parseBoolOrDefault("STRICT_LINE_DETECTION", c.Extraction.StrictDetection)

	c.AI.Provider = ProviderKind(getEnvOrDefault("AI_PROVIDER", string(c.AI.Provider)))
	c.AI.BaseURL = getEnvOrDefault("AI_BASE_URL", c.AI.BaseURL)
	c.AI.APIKey = getEnvOrDefault("AI_API_KEY", c.AI.APIKey)
	c.AI.Model = getEnvOrDefault("AI_MODEL", c.AI.Model)
	c.AI.RequestTimeout = parseDurationOrDefault("AI_REQUEST_TIMEOUT", c.AI.RequestTimeout)

	c.Cache.RedisURL = getEnvOrDefault("REDIS_URL", c.Cache.RedisURL)

	c.Storage.AzureAccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", c.Storage.AzureAccountName)
	c.Storage.AzureAccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", c.Storage.AzureAccountKey)
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Server.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Server.Port)
	}
	if c.Server.MaxRequestBodySize <= 0 {
		return fmt.Errorf("max_request_body_size must be > 0 (got %d)", c.Server.MaxRequestBodySize)
	}
	if c.Performance.QuickAnalysisTimeout <= 0 || c.Performance.FullAnalysisTimeout <= 0 || c.Performance.HealthCheckTimeout <= 0 {
		return fmt.Errorf("performance timeouts must be > 0 (got quick=%s, full=%s, health=%s)",
			c.Performance.QuickAnalysisTimeout, c.Performance.FullAnalysisTimeout, c.Performance.HealthCheckTimeout)
	}
	if c.Image.MaxSizeBytes <= 0 {
		return fmt.Errorf("image.max_size_bytes must be > 0 (got %d)", c.Image.MaxSizeBytes)
	}
	if len(c.Image.AllowedMIMETypes) == 0 {
		return fmt.Errorf("image.allowed_mime_types must not be empty")
	}
	if c.Image.MinWidth <= 0 || c.Image.MinHeight <= 0 || c.Image.MaxWidth < c.Image.MinWidth || c.Image.MaxHeight < c.Image.MinHeight {
		return fmt.Errorf("invalid image resolution bounds: min=%dx%d max=%dx%d",
			c.Image.MinWidth, c.Image.MinHeight, c.Image.MaxWidth, c.Image.MaxHeight)
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be in [1,100] (got %d)", c.Image.JPEGQuality)
	}
	for _, step := range c.Image.EnhancementSteps {
		switch step {
		case "normalize", "sharpen", "denoise":
		default:
			return fmt.Errorf("unknown enhancement step %q", step)
		}
	}
	switch c.AI.Provider {
	case ProviderStatic:
	case ProviderOpenAICompatible:
		if c.AI.BaseURL == "" {
			return fmt.Errorf("ai.base_url is required for provider %q", c.AI.Provider)
		}
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.Cache.L1MaxEntries <= 0 {
		return fmt.Errorf("cache.l1_max_entries must be > 0 (got %d)", c.Cache.L1MaxEntries)
	}
	total := 0
	for _, v := range c.Conversion.Variants {
		if v.Traffic < 0 {
			return fmt.Errorf("variant %q has negative traffic", v.Name)
		}
		switch v.Strategy {
		case "", "personalized", "discount", "urgency":
		default:
			return fmt.Errorf("variant %q has unknown strategy %q", v.Name, v.Strategy)
		}
		total += v.Traffic
	}
	if len(c.Conversion.Variants) > 0 && total != 100 {
		return fmt.Errorf("conversion variant traffic must sum to 100 (got %d)", total)
	}
	if c.Alerts.MaxErrorRate < 0 || c.Alerts.MaxErrorRate > 1 {
		return fmt.Errorf("alerts.max_error_rate must be in [0,1] (got %f)", c.Alerts.MaxErrorRate)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
