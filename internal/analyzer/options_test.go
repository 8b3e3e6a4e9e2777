package analyzer

import (
	"testing"

	"go-palm-insight/internal/config"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.MinLinePoints != 10 {
		t.Errorf("Expected MinLinePoints to be 10, got %d", opts.MinLinePoints)
	}
	if opts.StrictDetection {
		t.Error("Expected StrictDetection to be false by default")
	}
	if opts.EdgeSigma != 1.5 {
		t.Errorf("Expected EdgeSigma to be 1.5, got %f", opts.EdgeSigma)
	}
	if opts.ColumnStep != 2 {
		t.Errorf("Expected ColumnStep to be 2, got %d", opts.ColumnStep)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.ExtractionConfig{MinLinePoints: 25, StrictDetection: true, Workers: 8})

	if opts.MinLinePoints != 25 {
		t.Errorf("Expected MinLinePoints to be 25, got %d", opts.MinLinePoints)
	}
	if !opts.StrictDetection {
		t.Error("Expected StrictDetection to be true")
	}
	if opts.MaxWorkers != 8 {
		t.Errorf("Expected MaxWorkers to be 8, got %d", opts.MaxWorkers)
	}
}

func TestOptionsFromConfig_KeepsDefaultsForZeroValues(t *testing.T) {
	opts := OptionsFromConfig(config.ExtractionConfig{})

	if opts.MinLinePoints != 10 || opts.MaxWorkers != 4 {
		t.Errorf("Expected defaults, got %+v", opts)
	}
}

func TestOptionsChaining(t *testing.T) {
	opts := DefaultOptions().WithStrictDetection().WithMinLinePoints(3)

	if !opts.StrictDetection {
		t.Error("Expected StrictDetection to be true")
	}
	if opts.MinLinePoints != 3 {
		t.Errorf("Expected MinLinePoints to be 3, got %d", opts.MinLinePoints)
	}
	// Original should be unchanged
	if DefaultOptions().StrictDetection {
		t.Error("Expected chaining to leave the defaults untouched")
	}
}

func TestNormalizedFillsInvalidValues(t *testing.T) {
	opts := ExtractionOptions{MinLinePoints: -1, EdgeSigma: 0, ColumnStep: 0}.normalized()

	def := DefaultOptions()
	if opts.MinLinePoints != def.MinLinePoints || opts.EdgeSigma != def.EdgeSigma || opts.ColumnStep != def.ColumnStep {
		t.Errorf("Expected defaults after normalization, got %+v", opts)
	}
}
