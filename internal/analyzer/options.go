package analyzer

import "go-palm-insight/internal/config"

// ExtractionOptions configures line detection
type ExtractionOptions struct {
	// MinLinePoints is the fewest traced points accepted as a real detection
	MinLinePoints int
	// StrictDetection fails the extraction instead of substituting synthetic lines
	StrictDetection bool
	// EdgeSigma sets the edge threshold at mean + EdgeSigma*stddev of the region magnitude
	EdgeSigma float64
	// ColumnStep is the stride between traced columns
	ColumnStep int
	// FingerEdgeDensity is the minimum edge share for a finger strip to count as detected
	FingerEdgeDensity float64
	MaxWorkers        int
}

// DefaultOptions returns default extraction options
func DefaultOptions() ExtractionOptions {
	return ExtractionOptions{
		MinLinePoints:     10,
		StrictDetection:   false,
		EdgeSigma:         1.5,
		ColumnStep:        2,
		FingerEdgeDensity: 0.02,
		MaxWorkers:        4,
	}
}

// OptionsFromConfig overlays the extraction config section on the defaults
func OptionsFromConfig(cfg config.ExtractionConfig) ExtractionOptions {
	opts := DefaultOptions()
	if cfg.MinLinePoints > 0 {
		opts.MinLinePoints = cfg.MinLinePoints
	}
	if cfg.Workers > 0 {
		opts.MaxWorkers = cfg.Workers
	}
	opts.StrictDetection = cfg.StrictDetection
	return opts
}

// WithStrictDetection disables the synthetic fallback
func (opts ExtractionOptions) WithStrictDetection() ExtractionOptions {
	opts.StrictDetection = true
	return opts
}

// WithMinLinePoints overrides the real-detection point threshold
func (opts ExtractionOptions) WithMinLinePoints(n int) ExtractionOptions {
	opts.MinLinePoints = n
	return opts
}

func (opts ExtractionOptions) normalized() ExtractionOptions {
	def := DefaultOptions()
	if opts.MinLinePoints <= 0 {
		opts.MinLinePoints = def.MinLinePoints
	}
	if opts.EdgeSigma <= 0 {
		opts.EdgeSigma = def.EdgeSigma
	}
	if opts.ColumnStep <= 0 {
		opts.ColumnStep = def.ColumnStep
	}
	if opts.FingerEdgeDensity <= 0 {
		opts.FingerEdgeDensity = def.FingerEdgeDensity
	}
	return opts
}
