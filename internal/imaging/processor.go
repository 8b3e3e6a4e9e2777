package imaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"go-palm-insight/internal/config"
	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/pkg/models"
	"go-palm-insight/pkg/validation"
)

// Enhancement step names
const (
	StepResize    = "resize"
	StepNormalize = "normalize"
	StepSharpen   = "sharpen"
	StepDenoise   = "denoise"
	StepCompress  = "compress"
)

// Processor validates, normalizes, compresses and hashes uploaded images
type Processor interface {
	// Validate checks size, format and resolution and fails fast on the first violation
	Validate(img models.ImageData) error
	// Process returns a new normalized JPEG buffer; the input is never mutated
	Process(ctx context.Context, img models.ImageData) (*models.ProcessedImage, error)
	// CalculateHash is a pure content hash used as the feature cache key
	CalculateHash(buf []byte) string
	ExtractMetadata(buf []byte) (*models.ImageMetadata, error)
}

// Options configure the processor
type Options struct {
	Constraints      validation.ImageConstraints
	ProcessMaxWidth  int
	ProcessMaxHeight int
	JPEGQuality      int
	Steps            []string
}

// OptionsFromConfig maps the image config section onto processor options
func OptionsFromConfig(cfg config.ImageConfig) Options {
	return Options{
		Constraints: validation.ImageConstraints{
			MaxSizeBytes:     cfg.MaxSizeBytes,
			AllowedMIMETypes: cfg.AllowedMIMETypes,
			MinWidth:         cfg.MinWidth,
			MinHeight:        cfg.MinHeight,
			MaxWidth:         cfg.MaxWidth,
			MaxHeight:        cfg.MaxHeight,
		},
		ProcessMaxWidth:  cfg.ProcessMaxWidth,
		ProcessMaxHeight: cfg.ProcessMaxHeight,
		JPEGQuality:      cfg.JPEGQuality,
		Steps:            cfg.EnhancementSteps,
	}
}

type imageProcessor struct {
	opts      Options
	validator *validation.ImageValidator
	log       logrus.FieldLogger
}

// NewProcessor creates an image processor
func NewProcessor(opts Options, log logrus.FieldLogger) Processor {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	return &imageProcessor{
		opts:      opts,
		validator: validation.NewImageValidator(opts.Constraints),
		log:       log.WithField("component", "image_processor"),
	}
}

var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

func (p *imageProcessor) Validate(img models.ImageData) error {
	size := int64(len(img.Buffer))
	if img.Size > size {
		size = img.Size
	}
	if issue := p.validator.CheckSize(size); issue != nil {
		return issue.ToError()
	}

	mimeType := img.MimeType
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(img.Buffer)
	}
	if issue := p.validator.CheckFormat(mimeType); issue != nil {
		return issue.ToError()
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Buffer))
	if err != nil {
		return apperrors.NewImageProcessingError(apperrors.ViolationDecode, "failed to read image header", err)
	}
	if issue := p.validator.CheckFormat(formatMIME[format]); issue != nil {
		return issue.ToError().WithDetail("detected_format", format)
	}
	if issue := p.validator.CheckResolution(cfg.Width, cfg.Height); issue != nil {
		return issue.ToError()
	}
	return nil
}

func (p *imageProcessor) Process(ctx context.Context, img models.ImageData) (*models.ProcessedImage, error) {
	start := time.Now()
	if err := p.Validate(img); err != nil {
		return nil, err
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Buffer))
	if err != nil {
		return nil, apperrors.NewImageProcessingError(apperrors.ViolationDecode, "failed to decode image", err)
	}

	work := toRGBA(decoded)
	var steps []string

	w, h := work.Rect.Dx(), work.Rect.Dy()
	if nw, nh, ok := fitInside(w, h, p.opts.ProcessMaxWidth, p.opts.ProcessMaxHeight); ok {
		work = resize(work, nw, nh)
		steps = append(steps, StepResize)
	}

	for _, step := range p.opts.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch step {
		case StepNormalize:
			work = normalizeContrast(work)
		case StepSharpen:
			work = convolve(work, sharpenKernel)
		case StepDenoise:
			work = convolve(work, denoiseKernel)
		default:
			p.log.WithField("step", step).Warn("Skipping unknown enhancement step")
			continue
		}
		steps = append(steps, step)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, work, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return nil, apperrors.NewImageProcessingError(apperrors.ViolationEncode, "failed to encode image", err)
	}
	steps = append(steps, StepCompress)

	originalSize := int64(len(img.Buffer))
	processedSize := int64(buf.Len())
	ratio := 0.0
	if processedSize > 0 {
		ratio = float64(originalSize) / float64(processedSize)
	}

	p.log.WithFields(logrus.Fields{
		"source_format":      format,
		"original_size":      originalSize,
		"processed_size":     processedSize,
		"width":              work.Rect.Dx(),
		"height":             work.Rect.Dy(),
		"steps":              steps,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}).Debug("Image processed")

	return &models.ProcessedImage{
		Buffer:   buf.Bytes(),
		Width:    work.Rect.Dx(),
		Height:   work.Rect.Dy(),
		Channels: 3,
		Format:   "jpeg",
		Metadata: models.ProcessingMetadata{
			OriginalSize:     originalSize,
			ProcessedSize:    processedSize,
			CompressionRatio: ratio,
			Steps:            steps,
		},
	}, nil
}

func (p *imageProcessor) CalculateHash(buf []byte) string {
	return CalculateHash(buf)
}

func (p *imageProcessor) ExtractMetadata(buf []byte) (*models.ImageMetadata, error) {
	return ExtractMetadata(buf)
}

// CalculateHash returns the hex SHA-256 of buf
func CalculateHash(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// ExtractMetadata reads the image header only
func ExtractMetadata(buf []byte) (*models.ImageMetadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, apperrors.NewImageProcessingError(apperrors.ViolationDecode, "failed to read image header", err)
	}
	aspect := 0.0
	if cfg.Height > 0 {
		aspect = float64(cfg.Width) / float64(cfg.Height)
	}
	return &models.ImageMetadata{
		Format:      format,
		MimeType:    formatMIME[format],
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        int64(len(buf)),
		AspectRatio: aspect,
	}, nil
}
