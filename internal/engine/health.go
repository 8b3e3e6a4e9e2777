package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-palm-insight/internal/metrics"
	"go-palm-insight/pkg/models"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type ServiceHealth struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type HealthStatus struct {
	Status      string                     `json:"status"`
	Services    map[string]ServiceHealth   `json:"services"`
	Performance metrics.PerformanceMetrics `json:"performance"`
	Timestamp   time.Time                  `json:"timestamp"`
}

var errProbePanicked = errors.New("probe panicked")

type probe struct {
	name  string
	check func(ctx context.Context) error
}

func (e *engine) probes() []probe {
	list := []probe{
		{name: "image_processor", check: func(ctx context.Context) error {
			_, err := e.deps.Processor.Process(ctx, e.probe)
			return err
		}},
		{name: "feature_extractor", check: func(ctx context.Context) error {
			features, err := e.deps.Extractor.Extract(ctx, e.probe)
			if err != nil {
				return err
			}
			if features.Confidence < 0 || features.Confidence > 1 {
				return fmt.Errorf("confidence %f out of range", features.Confidence)
			}
			return nil
		}},
		{name: "cache", check: e.deps.Cache.Ping},
		{name: "metrics", check: func(context.Context) error {
			_ = e.deps.Metrics.GetPerformanceMetrics()
			return nil
		}},
	}
	if e.deps.Text != nil {
		list = append(list, probe{name: "text_generator", check: e.deps.Text.Ping})
	}
	return list
}

// GetHealthStatus probes every component concurrently. It never fails: a
// failed probe degrades the status and a panicking probe makes it unhealthy.
func (e *engine) GetHealthStatus(ctx context.Context) HealthStatus {
	probes := e.probes()

	var (
		mu       sync.Mutex
		services = make(map[string]ServiceHealth, len(probes))
		failed   int
		panicked bool
	)

	var g errgroup.Group
	for _, p := range probes {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, e.cfg.HealthCheckTimeout)
			defer cancel()

			start := e.now()
			err := runProbe(probeCtx, p.check)
			sh := ServiceHealth{Status: StatusHealthy, LatencyMs: e.now().Sub(start).Milliseconds()}
			if err != nil {
				sh.Status = StatusUnhealthy
				sh.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			services[p.name] = sh
			if err != nil {
				failed++
				if errors.Is(err, errProbePanicked) {
					panicked = true
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	status := StatusHealthy
	switch {
	case panicked:
		status = StatusUnhealthy
	case failed > 0:
		status = StatusDegraded
	}

	if status != StatusHealthy {
		e.log.WithField("services", services).Warn("Health check reported failures")
	}

	return HealthStatus{
		Status:      status,
		Services:    services,
		Performance: e.safePerformance(),
		Timestamp:   e.now().UTC(),
	}
}

func runProbe(ctx context.Context, check func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errProbePanicked, r)
		}
	}()
	return check(ctx)
}

func (e *engine) safePerformance() (perf metrics.PerformanceMetrics) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("Reading performance metrics failed")
		}
	}()
	return e.deps.Metrics.GetPerformanceMetrics()
}

// probeImage is a small synthetic hand-like gradient used to exercise the
// imaging and extraction path without user data
func probeImage() (models.ImageData, error) {
	const w, h = 256, 320
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(90 + (x*60)/w + (y*40)/h)
			if (y-x/2)%37 == 0 {
				v = 40
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return models.ImageData{}, err
	}
	return models.ImageData{
		Buffer:   buf.Bytes(),
		MimeType: "image/jpeg",
		Size:     int64(buf.Len()),
		Width:    w,
		Height:   h,
	}, nil
}
