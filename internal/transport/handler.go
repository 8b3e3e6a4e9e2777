package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/config"
	"go-palm-insight/internal/conversion"
	"go-palm-insight/internal/engine"
	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/internal/metrics"
	"go-palm-insight/internal/storage"
	"go-palm-insight/pkg/models"
	"go-palm-insight/pkg/validation"
)

// StatsProvider exposes the collector's aggregates
type StatsProvider interface {
	GetPerformanceMetrics() metrics.PerformanceMetrics
	GetBusinessMetrics() metrics.BusinessMetrics
	RealTime() metrics.RealTimeStats
}

// PipelineStats reports state-transition counts
type PipelineStats interface {
	GetMetrics() map[string]any
}

// Dependencies of the HTTP layer. Source, Pipeline and Gatherer are optional.
type Dependencies struct {
	Engine    engine.Engine
	Optimizer conversion.Optimizer
	Stats     StatsProvider
	Source    storage.ImageSource
	Sources   *validation.SourceValidator
	Pipeline  PipelineStats
	Gatherer  prometheus.Gatherer
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// UserPayload is the wire form of models.UserInfo
type UserPayload struct {
	BirthDate     string `json:"birth_date" binding:"required"`
	BirthTime     string `json:"birth_time,omitempty"`
	BirthLocation string `json:"birth_location,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Language      string `json:"language,omitempty"`
}

// CompleteRequest asks for a full report. Report may be sent inline;
// otherwise the quick report cached under ReportID is used.
type CompleteRequest struct {
	UserID   string              `json:"user_id" binding:"required"`
	ReportID string              `json:"report_id"`
	Report   *models.QuickReport `json:"report,omitempty"`
	User     UserPayload         `json:"user" binding:"required"`
}

type ConversionEventRequest struct {
	UserID   string  `json:"user_id" binding:"required"`
	ReportID string  `json:"report_id"`
	Strategy string  `json:"strategy"`
	Variant  string  `json:"variant"`
	Event    string  `json:"event" binding:"required,oneof=view purchase"`
	Amount   float64 `json:"amount" binding:"gte=0"`
}

type handler struct {
	deps Dependencies
	cfg  *config.Config
	log  logrus.FieldLogger
}

// NewHandler builds the gin router
func NewHandler(deps Dependencies, cfg *config.Config, log logrus.FieldLogger) http.Handler {
	h := &handler{deps: deps, cfg: cfg, log: log.WithField("component", "http")}
	if h.deps.Sources == nil {
		h.deps.Sources = validation.NewSourceValidator()
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(h.log),
		requestSizeLimiter(cfg.Server.MaxRequestBodySize),
		errorHandler(h.log),
	)

	r.GET("/health", h.health)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.POST("/analysis/quick", h.analyzeQuick)
	v1.POST("/analysis/complete", h.analyzeComplete)
	v1.GET("/reports/:id", h.getQuickReport)
	v1.GET("/conversion/strategy/:user_id", h.conversionStrategy)
	v1.POST("/conversion/events", h.trackConversion)
	v1.GET("/stats", h.stats)

	return r
}

func (h *handler) analyzeQuick(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Server.RequestTimeout)
	defer cancel()

	userID := strings.TrimSpace(c.PostForm("user_id"))
	if userID == "" {
		respondError(c, h.log, apperrors.NewValidationError("user_id is required", nil))
		return
	}
	user, err := parseUser(UserPayload{
		BirthDate:     c.PostForm("birth_date"),
		BirthTime:     c.PostForm("birth_time"),
		BirthLocation: c.PostForm("birth_location"),
		Gender:        c.PostForm("gender"),
		Language:      c.PostForm("language"),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	img, err := h.readImage(ctx, c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	result, err := h.deps.Engine.AnalyzeQuick(ctx, *img, user, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readImage takes the multipart "image" file, or fetches "image_url"
func (h *handler) readImage(ctx context.Context, c *gin.Context) (*models.ImageData, error) {
	file, err := c.FormFile("image")
	if err == nil {
		// Leave oversized uploads unread; the engine rejects them by size
		if file.Size > h.cfg.Image.MaxSizeBytes {
			return &models.ImageData{Size: file.Size, MimeType: file.Header.Get("Content-Type")}, nil
		}
		f, err := file.Open()
		if err != nil {
			return nil, apperrors.NewValidationError("cannot read uploaded image", err)
		}
		defer f.Close()
		buf, err := io.ReadAll(f)
		if err != nil {
			return nil, apperrors.NewValidationError("cannot read uploaded image", err)
		}
		return &models.ImageData{
			Buffer:   buf,
			MimeType: file.Header.Get("Content-Type"),
			Size:     int64(len(buf)),
		}, nil
	}
	if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return nil, apperrors.NewValidationError("invalid multipart upload", err)
	}

	ref := strings.TrimSpace(c.PostForm("image_url"))
	if ref == "" {
		return nil, apperrors.NewValidationError("an image file or image_url is required", nil)
	}
	if _, err := h.deps.Sources.Validate(ref); err != nil {
		return nil, err
	}
	if h.deps.Source == nil {
		return nil, apperrors.NewValidationError("image_url uploads are not enabled", nil)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.cfg.Server.ImageFetchTimeout)
	defer cancel()

	h.log.WithField("image_url", ref).Debug("Fetching image")
	return h.deps.Source.Fetch(fetchCtx, ref)
}

func (h *handler) analyzeComplete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Server.RequestTimeout)
	defer cancel()

	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.NewValidationError("invalid request format", err))
		return
	}
	user, err := parseUser(req.User)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	quick := req.Report
	if quick == nil {
		quick, err = h.deps.Engine.LoadQuickReport(ctx, req.ReportID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
	}

	full, err := h.deps.Engine.AnalyzeComplete(ctx, quick, user, req.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, full)
}

func (h *handler) getQuickReport(c *gin.Context) {
	quick, err := h.deps.Engine.LoadQuickReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, quick)
}

func (h *handler) conversionStrategy(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Optimizer.GetConversionStrategy(c.Param("user_id")))
}

func (h *handler) trackConversion(c *gin.Context) {
	var req ConversionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.NewValidationError("invalid conversion event", err))
		return
	}
	h.deps.Optimizer.TrackConversion(conversion.Event{
		UserID:   req.UserID,
		ReportID: req.ReportID,
		Strategy: req.Strategy,
		Variant:  req.Variant,
		Event:    req.Event,
		Amount:   req.Amount,
	})
	c.Status(http.StatusAccepted)
}

func (h *handler) stats(c *gin.Context) {
	if h.deps.Stats == nil {
		respondError(c, h.log, apperrors.NewNotFoundError("stats are not enabled", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"performance": h.deps.Stats.GetPerformanceMetrics(),
		"business":    h.deps.Stats.GetBusinessMetrics(),
		"realtime":    h.deps.Stats.RealTime(),
	})
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Performance.HealthCheckTimeout+time.Second)
	defer cancel()

	status := h.deps.Engine.GetHealthStatus(ctx)
	body := gin.H{
		"status":      status.Status,
		"services":    status.Services,
		"performance": status.Performance,
		"timestamp":   status.Timestamp.Format(time.RFC3339),
	}
	if h.deps.Pipeline != nil {
		body["pipeline"] = h.deps.Pipeline.GetMetrics()
	}

	code := http.StatusOK
	if status.Status == engine.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

func parseUser(p UserPayload) (models.UserInfo, error) {
	birth, err := time.Parse(models.BirthDateLayout, strings.TrimSpace(p.BirthDate))
	if err != nil {
		return models.UserInfo{}, apperrors.NewValidationError(
			fmt.Sprintf("birth_date must use the %s layout", models.BirthDateLayout), err)
	}
	user := models.UserInfo{
		BirthDate:     birth,
		BirthTime:     strings.TrimSpace(p.BirthTime),
		BirthLocation: strings.TrimSpace(p.BirthLocation),
		Gender:        models.Gender(strings.ToLower(strings.TrimSpace(p.Gender))),
		Language:      p.Language,
	}
	if err := user.Validate(); err != nil {
		return models.UserInfo{}, apperrors.NewValidationError("invalid user info", err)
	}
	return user, nil
}
