package conversion

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/config"
	"go-palm-insight/internal/metrics"
	"go-palm-insight/pkg/models"
)

// Engagement levels derived from how much birth data the user supplied
const (
	EngagementHigh   = "high"
	EngagementMedium = "medium"
	EngagementLow    = "low"
)

// Funnel events accepted by TrackConversion
const (
	EventView     = "view"
	EventPurchase = "purchase"
)

// Recorder is the metrics sink for funnel events
type Recorder interface {
	RecordConversion(rec metrics.ConversionRecord)
	RecordUserSession(rec metrics.SessionRecord)
}

// Assignment is the A/B variant a user lands in
type Assignment struct {
	Variant  string `json:"variant"`
	Strategy string `json:"strategy,omitempty"`
	Bucket   int    `json:"bucket"`
}

// Event is one step of the quick-to-full conversion funnel
type Event struct {
	UserID   string
	ReportID string
	Strategy string
	Variant  string
	Event    string
	Amount   float64
}

// Optimizer picks the upsell for a quick report. None of its methods fail
// the calling flow.
type Optimizer interface {
	Optimize(report *models.QuickReport, user models.UserInfo, userID string) models.ConversionHints
	GetConversionStrategy(userID string) Assignment
	TrackConversion(ev Event)
}

type optimizer struct {
	cfg        config.ConversionConfig
	strategies map[string]Strategy
	recorder   Recorder
	now        func() time.Time
	log        logrus.FieldLogger
}

type Option func(*optimizer)

func WithRecorder(r Recorder) Option {
	return func(o *optimizer) { o.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *optimizer) { o.now = now }
}

// NewOptimizer creates an optimizer over the configured strategies
func NewOptimizer(cfg config.ConversionConfig, log logrus.FieldLogger, opts ...Option) Optimizer {
	o := &optimizer{
		cfg: cfg,
		strategies: map[string]Strategy{
			StrategyPersonalized: NewPersonalizedStrategy(cfg.Personalized),
			StrategyDiscount:     NewDiscountStrategy(cfg.Discount),
			StrategyUrgency:      NewUrgencyStrategy(cfg.Urgency),
		},
		now: time.Now,
		log: log.WithField("component", "conversion_optimizer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *optimizer) Optimize(report *models.QuickReport, user models.UserInfo, userID string) (hints models.ConversionHints) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithFields(logrus.Fields{
				"user_id": userID,
				"panic":   fmt.Sprint(r),
			}).Error("Conversion optimization failed, using default hints")
			hints = o.defaultHints()
		}
	}()

	if report == nil {
		o.log.WithField("user_id", userID).Warn("No report to optimize, using default hints")
		return o.defaultHints()
	}

	quality := o.qualityScore(report)
	engagement := Engagement(user)
	assignment := o.GetConversionStrategy(userID)

	name := assignment.Strategy
	if name == "" {
		name = o.selectStrategy(quality, engagement)
	}
	strategy, ok := o.strategies[name]
	if !ok {
		strategy = o.strategies[StrategyUrgency]
	}

	hints = strategy.Apply(Input{
		Highlights: o.highlights(report),
		Variant:    assignment.Variant,
		Now:        o.now(),
	})

	o.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"report_id":  report.Metadata.ID,
		"quality":    quality,
		"engagement": engagement,
		"strategy":   hints.Strategy,
		"variant":    hints.Variant,
	}).Debug("Conversion strategy selected")

	return hints
}

// qualityScore weighs processing time and content richness equally
func (o *optimizer) qualityScore(report *models.QuickReport) float64 {
	var timeScore float64
	switch ms := report.Metadata.ProcessingTime; {
	case ms <= 15000:
		timeScore = 1.0
	case ms <= 30000:
		timeScore = 0.8
	default:
		timeScore = 0.6
	}

	// each sufficiently long summary weighs 0.2
	rich := 0
	for _, d := range models.Dimensions {
		if len(strings.TrimSpace(report.Summary(d))) > o.cfg.MinSummaryLength {
			rich++
		}
	}
	richness := float64(rich) / float64(len(models.Dimensions))
	return 0.5*timeScore + 0.5*richness
}

func (o *optimizer) selectStrategy(quality float64, engagement string) string {
	switch {
	case quality > o.cfg.PersonalizedQuality && engagement == EngagementHigh:
		return StrategyPersonalized
	case quality > o.cfg.DiscountQuality:
		return StrategyDiscount
	default:
		return StrategyUrgency
	}
}

// highlights returns the dimensions with the longest summaries: three when
// the third is itself long enough, otherwise two
func (o *optimizer) highlights(report *models.QuickReport) []models.Dimension {
	dims := make([]models.Dimension, len(models.Dimensions))
	copy(dims, models.Dimensions)
	sort.SliceStable(dims, func(i, j int) bool {
		return len(report.Summary(dims[i])) > len(report.Summary(dims[j]))
	})
	if len(report.Summary(dims[2])) > o.cfg.MinSummaryLength {
		return dims[:3]
	}
	return dims[:2]
}

// GetConversionStrategy assigns userID to a variant by walking the
// cumulative traffic split over a stable 0-99 bucket
func (o *optimizer) GetConversionStrategy(userID string) Assignment {
	bucket := Bucket(userID)
	cumulative := 0
	for _, v := range o.cfg.Variants {
		cumulative += v.Traffic
		if bucket < cumulative {
			return Assignment{Variant: v.Name, Strategy: v.Strategy, Bucket: bucket}
		}
	}
	return Assignment{Variant: "control", Bucket: bucket}
}

// TrackConversion forwards a funnel event to metrics
func (o *optimizer) TrackConversion(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", fmt.Sprint(r)).Error("Conversion tracking failed")
		}
	}()
	if o.recorder == nil {
		return
	}

	switch ev.Event {
	case EventView:
		o.recorder.RecordUserSession(metrics.SessionRecord{
			UserID:    ev.UserID,
			SessionID: uuid.NewString(),
		})
	case EventPurchase:
		o.recorder.RecordConversion(metrics.ConversionRecord{
			UserID:   ev.UserID,
			ReportID: ev.ReportID,
			Strategy: ev.Strategy,
			Variant:  ev.Variant,
			Amount:   ev.Amount,
		})
	default:
		o.log.WithFields(logrus.Fields{
			"user_id": ev.UserID,
			"event":   ev.Event,
		}).Warn("Ignoring unknown conversion event")
	}
}

func (o *optimizer) defaultHints() models.ConversionHints {
	message := o.cfg.DefaultMessage
	if message == "" {
		message = "Unlock your complete palm reading for deeper insights."
	}
	return models.ConversionHints{
		HighlightedDimensions: []models.Dimension{models.DimensionPersonality, models.DimensionCareer},
		PersonalizedMessage:   message,
		UrgencyLevel:          models.UrgencyLow,
	}
}

// Engagement grades how much optional birth data the user supplied
func Engagement(user models.UserInfo) string {
	n := 0
	if strings.TrimSpace(user.BirthTime) != "" {
		n++
	}
	if strings.TrimSpace(user.BirthLocation) != "" {
		n++
	}
	switch n {
	case 2:
		return EngagementHigh
	case 1:
		return EngagementMedium
	default:
		return EngagementLow
	}
}

// Bucket hashes userID into [0,100)
func Bucket(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}
