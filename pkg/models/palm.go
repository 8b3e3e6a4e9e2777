package models

// ImageData is a single uploaded hand photograph as received at the upload boundary.
// It is consumed once by the pipeline and never persisted.
type ImageData struct {
	Buffer   []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ProcessedImage is the normalized output of the image processor
type ProcessedImage struct {
	Buffer   []byte             `json:"-"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Channels int                `json:"channels"`
	Format   string             `json:"format"`
	Metadata ProcessingMetadata `json:"metadata"`
}

// ProcessingMetadata records what the processor did to an image
type ProcessingMetadata struct {
	OriginalSize     int64    `json:"original_size"`
	ProcessedSize    int64    `json:"processed_size"`
	CompressionRatio float64  `json:"compression_ratio"`
	Steps            []string `json:"steps"`
}

// ImageMetadata describes an encoded image without decoding its pixels
type ImageMetadata struct {
	Format      string  `json:"format"`
	MimeType    string  `json:"mime_type"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Size        int64   `json:"size"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// DetectionMethod tells whether a line geometry came from the edge detector
// or from the shape-parameterized fallback curve.
type DetectionMethod string

const (
	DetectionReal      DetectionMethod = "real"
	DetectionSynthetic DetectionMethod = "synthetic"
)

// Point is a 2D coordinate in processed-image pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PalmLine is one traced line. Depth and Clarity are in [0,1].
type PalmLine struct {
	Points          []Point         `json:"points"`
	Length          float64         `json:"length"`
	Depth           float64         `json:"depth"`
	Clarity         float64         `json:"clarity"`
	DetectionMethod DetectionMethod `json:"detection_method"`
}

// PalmLines groups the four named lines. Fate is optional in the model but the
// extractor always populates it.
type PalmLines struct {
	Life  PalmLine  `json:"life"`
	Head  PalmLine  `json:"head"`
	Heart PalmLine  `json:"heart"`
	Fate  *PalmLine `json:"fate,omitempty"`
}

// Synthetic reports whether any populated line fell back to a synthetic curve
func (l PalmLines) Synthetic() bool {
	if l.Life.DetectionMethod == DetectionSynthetic ||
		l.Head.DetectionMethod == DetectionSynthetic ||
		l.Heart.DetectionMethod == DetectionSynthetic {
		return true
	}
	return l.Fate != nil && l.Fate.DetectionMethod == DetectionSynthetic
}

type HandShape string

const (
	HandSquare      HandShape = "square"
	HandRectangular HandShape = "rectangular"
	HandConic       HandShape = "conic"
	HandSpatulate   HandShape = "spatulate"
)

// PalmShape holds coarse proportions of the palm
type PalmShape struct {
	Type        HandShape `json:"type"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Ratio       float64   `json:"ratio"`
	Flexibility float64   `json:"flexibility"`
}

type TipShape string

const (
	TipSquare    TipShape = "square"
	TipRound     TipShape = "round"
	TipPointed   TipShape = "pointed"
	TipSpatulate TipShape = "spatulate"
)

type Finger struct {
	Length      float64  `json:"length"`
	Flexibility float64  `json:"flexibility"`
	Tip         TipShape `json:"tip"`
}

type Fingers struct {
	Thumb  Finger `json:"thumb"`
	Index  Finger `json:"index"`
	Middle Finger `json:"middle"`
	Ring   Finger `json:"ring"`
	Pinky  Finger `json:"pinky"`
}

// PalmFeatures is the structured description of one hand image.
// It is immutable once produced and cached by image content hash.
type PalmFeatures struct {
	Lines          PalmLines `json:"lines"`
	Shape          PalmShape `json:"shape"`
	Fingers        Fingers   `json:"fingers"`
	Confidence     float64   `json:"confidence"`
	ProcessingTime int64     `json:"processing_time_ms"`
}
