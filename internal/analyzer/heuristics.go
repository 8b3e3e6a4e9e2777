package analyzer

import (
	"math"

	"go-palm-insight/pkg/models"
)

// palmShape classifies the hand from the frame proportions. The palm is
// assumed to fill the lower two thirds of an upright photo.
func palmShape(width, height int, flexibility float64) models.PalmShape {
	ratio := 0.0
	if width > 0 {
		ratio = float64(height) / float64(width)
	}

	var shape models.HandShape
	switch {
	case ratio < 1.1:
		shape = models.HandSquare
	case ratio < 1.3:
		shape = models.HandSpatulate
	case ratio < 1.5:
		shape = models.HandRectangular
	default:
		shape = models.HandConic
	}

	return models.PalmShape{
		Type:        shape,
		Width:       math.Round(float64(width) * 0.8),
		Height:      math.Round(float64(height) * 0.6),
		Ratio:       ratio,
		Flexibility: clampFloat(flexibility, 0, 1),
	}
}

// shapeSanity is 1 for the ratios a phone photo of a palm normally has and
// decays linearly outside them.
func shapeSanity(ratio float64) float64 {
	switch {
	case ratio >= 1.0 && ratio <= 2.0:
		return 1
	case ratio < 1.0:
		return clampFloat(1-(1.0-ratio), 0, 1)
	default:
		return clampFloat(1-(ratio-2.0), 0, 1)
	}
}

var tipByShape = map[models.HandShape]models.TipShape{
	models.HandSquare:      models.TipSquare,
	models.HandSpatulate:   models.TipSpatulate,
	models.HandRectangular: models.TipRound,
	models.HandConic:       models.TipPointed,
}

// finger proportions relative to palm height, thumb to pinky
var (
	fingerLengths     = [5]float64{0.55, 0.75, 0.82, 0.77, 0.60}
	fingerFlexibility = [5]float64{1.1, 0.9, 0.85, 0.9, 1.05}
)

// fingerSet builds all five fingers. Fingers whose strip showed no edges
// still get proportional geometry but lose half their flexibility estimate.
func fingerSet(shape models.PalmShape, detected [5]bool) models.Fingers {
	tip := tipByShape[shape.Type]
	var out [5]models.Finger
	for i := range out {
		flex := shape.Flexibility * fingerFlexibility[i]
		if !detected[i] {
			flex *= 0.5
		}
		out[i] = models.Finger{
			Length:      math.Round(shape.Height * fingerLengths[i]),
			Flexibility: clampFloat(flex, 0, 1),
			Tip:         tip,
		}
	}
	return models.Fingers{Thumb: out[0], Index: out[1], Middle: out[2], Ring: out[3], Pinky: out[4]}
}

// confidence averages line clarity, shape sanity and finger completeness
func confidence(lines models.PalmLines, shape models.PalmShape, completeness float64) float64 {
	clarities := []float64{lines.Life.Clarity, lines.Head.Clarity, lines.Heart.Clarity}
	if lines.Fate != nil {
		clarities = append(clarities, lines.Fate.Clarity)
	}
	sum := 0.0
	for _, c := range clarities {
		sum += c
	}
	lineScore := sum / float64(len(clarities))

	return clampFloat((lineScore+shapeSanity(shape.Ratio)+clampFloat(completeness, 0, 1))/3, 0, 1)
}
