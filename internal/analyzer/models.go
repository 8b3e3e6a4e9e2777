package analyzer

import "go-palm-insight/pkg/models"

// lineName identifies one of the four traced palm lines
type lineName string

const (
	lineLife  lineName = "life"
	lineHead  lineName = "head"
	lineHeart lineName = "heart"
	lineFate  lineName = "fate"
)

var allLines = []lineName{lineLife, lineHead, lineHeart, lineFate}

// region is a rectangle expressed as fractions of the image size
type region struct {
	x0, y0, x1, y1 float64
}

// lineRegions bound where each line is searched for on an upright palm photo
var lineRegions = map[lineName]region{
	lineLife:  {0.10, 0.30, 0.60, 0.90},
	lineHead:  {0.10, 0.35, 0.90, 0.60},
	lineHeart: {0.10, 0.20, 0.90, 0.45},
	lineFate:  {0.35, 0.30, 0.65, 0.95},
}

// fingerZone is the top strip of the frame split into five finger columns
var fingerZone = region{0.05, 0.0, 0.95, 0.35}

// lineResult is what a detection job hands back to the extractor
type lineResult struct {
	name lineName
	line models.PalmLine
	err  error
}
