package conversion

import (
	"strconv"
	"strings"
	"time"

	"go-palm-insight/internal/config"
	"go-palm-insight/pkg/models"
)

// Strategy names
const (
	StrategyPersonalized = "personalized"
	StrategyDiscount     = "discount"
	StrategyUrgency      = "urgency"
)

// Input is what a strategy needs to build hints for one report
type Input struct {
	Highlights []models.Dimension
	Variant    string
	Now        time.Time
}

// Strategy turns a scored report into conversion hints
type Strategy interface {
	Apply(in Input) models.ConversionHints
	GetStrategyName() string
}

// templateStrategy renders a configured message template. The three
// strategies differ only in configuration and urgency level.
type templateStrategy struct {
	name    string
	cfg     config.StrategyConfig
	urgency models.UrgencyLevel
}

// NewPersonalizedStrategy creates the strategy for rich reports from engaged users
func NewPersonalizedStrategy(cfg config.StrategyConfig) Strategy {
	return &templateStrategy{name: StrategyPersonalized, cfg: cfg, urgency: models.UrgencyLow}
}

// NewDiscountStrategy creates the strategy for solid reports
func NewDiscountStrategy(cfg config.StrategyConfig) Strategy {
	return &templateStrategy{name: StrategyDiscount, cfg: cfg, urgency: models.UrgencyMedium}
}

// NewUrgencyStrategy creates the fallback strategy
func NewUrgencyStrategy(cfg config.StrategyConfig) Strategy {
	return &templateStrategy{name: StrategyUrgency, cfg: cfg, urgency: models.UrgencyHigh}
}

func (s *templateStrategy) GetStrategyName() string {
	return s.name
}

func (s *templateStrategy) Apply(in Input) models.ConversionHints {
	hints := models.ConversionHints{
		HighlightedDimensions: in.Highlights,
		PersonalizedMessage:   s.render(in.Highlights),
		UrgencyLevel:          s.urgency,
		Strategy:              s.name,
		Variant:               in.Variant,
	}
	if s.cfg.DiscountPercentage > 0 {
		discount := s.cfg.DiscountPercentage
		hints.DiscountPercentage = &discount
	}
	if s.cfg.Validity > 0 {
		until := in.Now.Add(s.cfg.Validity)
		hints.ValidUntil = &until
	}
	return hints
}

// render fills {dimension}, {discount} and {hours} in the message template
func (s *templateStrategy) render(highlights []models.Dimension) string {
	dimension := "palm"
	if len(highlights) > 0 {
		dimension = string(highlights[0])
	}
	hours := int(s.cfg.Validity / time.Hour)
	r := strings.NewReplacer(
		"{dimension}", dimension,
		"{discount}", strconv.Itoa(s.cfg.DiscountPercentage),
		"{hours}", strconv.Itoa(hours),
	)
	return r.Replace(s.cfg.Message)
}
