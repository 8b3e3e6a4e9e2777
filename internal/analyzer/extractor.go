package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/pkg/models"
)

// fingerEdgeMagnitude is the Sobel magnitude counted as an edge in finger strips
const fingerEdgeMagnitude = 100.0

var (
	errRegionTooSmall     = errors.New("search region too small")
	errNoEdges            = errors.New("no edges in search region")
	errInsufficientPoints = errors.New("not enough traced points")
)

// featureExtractor implements FeatureExtractor and runs the per-line
// detectors on a shared worker pool.
type featureExtractor struct {
	opts       ExtractionOptions
	edges      EdgeCalculator
	workerPool *WorkerPool
	log        logrus.FieldLogger
}

// NewFeatureExtractor creates a feature extractor with a started worker pool
func NewFeatureExtractor(opts ExtractionOptions, log logrus.FieldLogger) FeatureExtractor {
	opts = opts.normalized()
	workerPool := NewWorkerPool(opts.MaxWorkers)
	workerPool.Start()

	return &featureExtractor{
		opts:       opts,
		edges:      NewEdgeCalculator(),
		workerPool: workerPool,
		log:        log.WithField("component", "feature_extractor"),
	}
}

func (fe *featureExtractor) Extract(ctx context.Context, img models.ImageData) (*models.PalmFeatures, error) {
	start := time.Now()

	if len(img.Buffer) == 0 {
		return nil, apperrors.NewFeatureExtractionError("image buffer is empty", nil)
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Buffer))
	if err != nil {
		return nil, apperrors.NewFeatureExtractionError("failed to decode image", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray := toGray(decoded)
	width, height := gray.Rect.Dx(), gray.Rect.Dy()

	flexibility := clampFloat(fe.edges.CalculateLaplacianVariance(gray)/2000, 0, 1)
	shape := palmShape(width, height, flexibility)

	// Buffered so detectors never block after the caller has gone away
	results := make(chan lineResult, len(allLines))
	for _, name := range allLines {
		job := func() { results <- fe.detectLineSafe(gray, name) }
		if !fe.workerPool.Submit(job) {
			job()
		}
	}

	traced := make(map[lineName]models.PalmLine, len(allLines))
	var synthetic []string
	for range allLines {
		var r lineResult
		select {
		case r = <-results:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if r.err != nil {
			if fe.opts.StrictDetection {
				return nil, apperrors.NewFeatureExtractionError(
					fmt.Sprintf("%s line detection failed", r.name), r.err).
					WithDetail("violation", apperrors.ViolationLineDetection).
					WithDetail("line", string(r.name))
			}
			fe.log.WithFields(logrus.Fields{
				"line":  r.name,
				"error": r.err.Error(),
			}).Debug("Line detection fell back to synthetic curve")
			r.line = syntheticLine(r.name, width, height, shape.Ratio)
			synthetic = append(synthetic, string(r.name))
		}
		traced[r.name] = r.line
	}

	fate := traced[lineFate]
	lines := models.PalmLines{
		Life:  traced[lineLife],
		Head:  traced[lineHead],
		Heart: traced[lineHeart],
		Fate:  &fate,
	}

	detected, completeness := fe.detectFingers(gray)
	features := &models.PalmFeatures{
		Lines:          lines,
		Shape:          shape,
		Fingers:        fingerSet(shape, detected),
		Confidence:     confidence(lines, shape, completeness),
		ProcessingTime: time.Since(start).Milliseconds(),
	}

	pool := fe.workerPool.GetStats()
	fe.log.WithFields(logrus.Fields{
		"width":               width,
		"height":              height,
		"hand_shape":          shape.Type,
		"synthetic_lines":     synthetic,
		"finger_completeness": completeness,
		"confidence":          features.Confidence,
		"processing_time_ms":  features.ProcessingTime,
		"pool_jobs":           pool.TotalJobs,
		"pool_active":         pool.ActiveWorkers,
	}).Debug("Palm features extracted")

	return features, nil
}

// detectLineSafe turns a detector panic into an ordinary line failure
func (fe *featureExtractor) detectLineSafe(gray *image.Gray, name lineName) (res lineResult) {
	res.name = name
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("line detector panicked: %v", r)
		}
	}()
	res.line, res.err = fe.detectLine(gray, name)
	return res
}

// detectLine crops the line's search region, edge-filters it, thresholds at
// mean + sigma*stddev and keeps the strongest edge in every traced column.
func (fe *featureExtractor) detectLine(gray *image.Gray, name lineName) (models.PalmLine, error) {
	rect := pixelRect(lineRegions[name], gray.Rect.Dx(), gray.Rect.Dy())
	if rect.Dx() < 3 || rect.Dy() < 3 {
		return models.PalmLine{}, errRegionTooSmall
	}

	crop := cropGray(gray, rect)
	cw, ch := crop.Rect.Dx(), crop.Rect.Dy()
	magnitudes := fe.edges.SobelMagnitude(crop)

	maxMag := floats.Max(magnitudes)
	if maxMag <= 0 {
		return models.PalmLine{}, errNoEdges
	}
	mean, std := stat.MeanStdDev(magnitudes, nil)
	threshold := mean + fe.opts.EdgeSigma*std

	var (
		points  []models.Point
		sum     float64
		jumps   float64
		columns int
		prevY   = -1
	)
	for x := 1; x < cw-1; x += fe.opts.ColumnStep {
		columns++
		bestY, best := -1, threshold
		for y := 1; y < ch-1; y++ {
			if m := magnitudes[y*cw+x]; m > best {
				best, bestY = m, y
			}
		}
		if bestY < 0 {
			continue
		}
		points = append(points, models.Point{
			X: float64(rect.Min.X + x),
			Y: float64(rect.Min.Y + bestY),
		})
		sum += best
		if prevY >= 0 {
			jumps += math.Abs(float64(bestY - prevY))
		}
		prevY = bestY
	}

	if len(points) < fe.opts.MinLinePoints {
		return models.PalmLine{}, fmt.Errorf("%w: traced %d, need %d", errInsufficientPoints, len(points), fe.opts.MinLinePoints)
	}

	coverage := float64(len(points)) / float64(columns)
	meanJump := 0.0
	if len(points) > 1 {
		meanJump = jumps / float64(len(points)-1)
	}
	smoothness := 1 / (1 + meanJump/(0.05*float64(ch)))

	return models.PalmLine{
		Points:          points,
		Length:          polylineLength(points),
		Depth:           clampFloat(sum/float64(len(points))/maxMag, 0, 1),
		Clarity:         clampFloat(coverage*smoothness, 0, 1),
		DetectionMethod: models.DetectionReal,
	}, nil
}

// detectFingers splits the finger zone into five strips and counts a finger
// as present when its strip has enough edge pixels.
func (fe *featureExtractor) detectFingers(gray *image.Gray) ([5]bool, float64) {
	var detected [5]bool
	zone := pixelRect(fingerZone, gray.Rect.Dx(), gray.Rect.Dy())
	if zone.Dx() < 15 || zone.Dy() < 3 {
		return detected, 0
	}

	stripWidth := zone.Dx() / 5
	found := 0
	for i := range detected {
		strip := image.Rect(zone.Min.X+i*stripWidth, zone.Min.Y, zone.Min.X+(i+1)*stripWidth, zone.Max.Y)
		magnitudes := fe.edges.SobelMagnitude(cropGray(gray, strip))
		if fe.edges.EdgeDensity(magnitudes, fingerEdgeMagnitude) >= fe.opts.FingerEdgeDensity {
			detected[i] = true
			found++
		}
	}
	return detected, float64(found) / float64(len(detected))
}

// Close stops the worker pool
func (fe *featureExtractor) Close() error {
	fe.workerPool.Close()
	return nil
}
