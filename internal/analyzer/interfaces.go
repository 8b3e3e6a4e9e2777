package analyzer

import (
	"context"
	"image"

	"go-palm-insight/pkg/models"
)

// FeatureExtractor derives palm features from a normalized image
type FeatureExtractor interface {
	// Extract always returns a structurally complete result. Only decode
	// failures (and strict-mode line failures) are returned as errors.
	Extract(ctx context.Context, img models.ImageData) (*models.PalmFeatures, error)

	// Lifecycle management
	Close() error
}

// EdgeCalculator handles gradient and texture computation
type EdgeCalculator interface {
	// SobelMagnitude returns a row-major gradient magnitude grid the size of gray
	SobelMagnitude(gray *image.Gray) []float64
	CalculateLaplacianVariance(gray *image.Gray) float64
	// EdgeDensity is the share of magnitudes strictly above threshold
	EdgeDensity(magnitudes []float64, threshold float64) float64
}
