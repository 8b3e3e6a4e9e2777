package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"slices"
	"testing"

	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/internal/logger"
	"go-palm-insight/pkg/models"
	"go-palm-insight/pkg/validation"
)

func testOptions() Options {
	return Options{
		Constraints: validation.ImageConstraints{
			MaxSizeBytes:     10 * 1024 * 1024,
			AllowedMIMETypes: []string{"image/jpeg", "image/png", "image/webp"},
			MinWidth:         200,
			MinHeight:        200,
			MaxWidth:         8000,
			MaxHeight:        8000,
		},
		ProcessMaxWidth:  400,
		ProcessMaxHeight: 400,
		JPEGQuality:      80,
		Steps:            []string{StepNormalize, StepSharpen, StepDenoise},
	}
}

// createGradientImage creates a diagonal gradient so filters have something to do
func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(40 + (x+y)*150/(width+height))
			img.Set(x, y, color.RGBA{v, v - 10, v - 20, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func imageData(buf []byte, mime string) models.ImageData {
	return models.ImageData{Buffer: buf, MimeType: mime, Size: int64(len(buf))}
}

func TestProcess_ResizesToFitInside(t *testing.T) {
	p := NewProcessor(testOptions(), logger.Discard())
	buf := encodeJPEG(t, createGradientImage(800, 400))

	out, err := p.Process(context.Background(), imageData(buf, "image/jpeg"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Width != 400 || out.Height != 200 {
		t.Errorf("Expected 400x200, got %dx%d", out.Width, out.Height)
	}
	if out.Format != "jpeg" || out.Channels != 3 {
		t.Errorf("Unexpected format/channels: %s/%d", out.Format, out.Channels)
	}
	want := []string{StepResize, StepNormalize, StepSharpen, StepDenoise, StepCompress}
	if !slices.Equal(out.Metadata.Steps, want) {
		t.Errorf("Expected steps %v, got %v", want, out.Metadata.Steps)
	}
	if out.Metadata.OriginalSize != int64(len(buf)) || out.Metadata.ProcessedSize != int64(len(out.Buffer)) {
		t.Errorf("Unexpected size metadata: %+v", out.Metadata)
	}
	if out.Metadata.CompressionRatio <= 0 {
		t.Errorf("Expected positive compression ratio, got %f", out.Metadata.CompressionRatio)
	}
}

func TestProcess_NeverEnlarges(t *testing.T) {
	p := NewProcessor(testOptions(), logger.Discard())
	buf := encodeJPEG(t, createGradientImage(300, 250))

	out, err := p.Process(context.Background(), imageData(buf, "image/jpeg"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Width != 300 || out.Height != 250 {
		t.Errorf("Expected original 300x250, got %dx%d", out.Width, out.Height)
	}
	if slices.Contains(out.Metadata.Steps, StepResize) {
		t.Error("Did not expect a resize step")
	}
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	p := NewProcessor(testOptions(), logger.Discard())
	buf := encodeJPEG(t, createGradientImage(500, 300))
	original := bytes.Clone(buf)

	if _, err := p.Process(context.Background(), imageData(buf, "image/jpeg")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !bytes.Equal(buf, original) {
		t.Error("Expected input buffer to be unchanged")
	}
}

func TestProcess_AcceptsPNG(t *testing.T) {
	p := NewProcessor(testOptions(), logger.Discard())
	var buf bytes.Buffer
	if err := png.Encode(&buf, createGradientImage(256, 256)); err != nil {
		t.Fatal(err)
	}

	out, err := p.Process(context.Background(), imageData(buf.Bytes(), "image/png"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Format != "jpeg" {
		t.Errorf("Expected re-encoded jpeg, got %s", out.Format)
	}
}

func TestValidate_Violations(t *testing.T) {
	p := NewProcessor(testOptions(), logger.Discard())
	valid := encodeJPEG(t, createGradientImage(300, 300))
	small := encodeJPEG(t, createGradientImage(120, 300))

	tests := []struct {
		name string
		img  models.ImageData
		want string
	}{
		{"declared size over limit", models.ImageData{Buffer: valid, MimeType: "image/jpeg", Size: 60 * 1024 * 1024}, apperrors.ViolationTooLarge},
		{"empty", models.ImageData{MimeType: "image/jpeg"}, apperrors.ViolationEmpty},
		{"disallowed mime", imageData(valid, "image/gif"), apperrors.ViolationFormat},
		{"garbage bytes", imageData([]byte("not an image at all"), "image/jpeg"), apperrors.ViolationDecode},
		{"too small", imageData(small, "image/jpeg"), apperrors.ViolationResolutionLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Validate(tt.img)
			appErr, ok := apperrors.As(err)
			if !ok {
				t.Fatalf("Expected AppError, got %v", err)
			}
			if appErr.Code != apperrors.CodeImageProcessing {
				t.Errorf("Expected %s, got %s", apperrors.CodeImageProcessing, appErr.Code)
			}
			if appErr.Violation() != tt.want {
				t.Errorf("Expected violation %s, got %s", tt.want, appErr.Violation())
			}
		})
	}
}

func TestValidate_SniffsMissingMimeType(t *testing.T) {
	p := NewProcessor(testOptions(), logger.Discard())
	buf := encodeJPEG(t, createGradientImage(300, 300))

	if err := p.Validate(imageData(buf, "")); err != nil {
		t.Errorf("Expected sniffed jpeg to validate, got %v", err)
	}
}

func TestCalculateHash_Deterministic(t *testing.T) {
	a := encodeJPEG(t, createGradientImage(210, 210))
	b := bytes.Clone(a)

	if CalculateHash(a) != CalculateHash(b) {
		t.Error("Expected identical bytes to hash identically")
	}
	if len(CalculateHash(a)) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(CalculateHash(a)))
	}
	b[len(b)-3] ^= 0xFF
	if CalculateHash(a) == CalculateHash(b) {
		t.Error("Expected different bytes to hash differently")
	}
}

func TestExtractMetadata(t *testing.T) {
	buf := encodeJPEG(t, createGradientImage(400, 200))

	meta, err := ExtractMetadata(buf)
	if err != nil {
		t.Fatalf("ExtractMetadata failed: %v", err)
	}
	if meta.Format != "jpeg" || meta.MimeType != "image/jpeg" {
		t.Errorf("Unexpected format: %+v", meta)
	}
	if meta.Width != 400 || meta.Height != 200 || meta.AspectRatio != 2 {
		t.Errorf("Unexpected dimensions: %+v", meta)
	}
	if meta.Size != int64(len(buf)) {
		t.Errorf("Expected size %d, got %d", len(buf), meta.Size)
	}
}

func TestFitInside(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
		resized          bool
	}{
		{1200, 1600, 2048, 2048, 1200, 1600, false},
		{4000, 3000, 2048, 2048, 2048, 1536, true},
		{1000, 3000, 2048, 1500, 500, 1500, true},
		{100, 100, 0, 0, 100, 100, false},
	}
	for _, tt := range tests {
		w, h, resized := fitInside(tt.w, tt.h, tt.maxW, tt.maxH)
		if w != tt.wantW || h != tt.wantH || resized != tt.resized {
			t.Errorf("fitInside(%d,%d,%d,%d) = %d,%d,%v; want %d,%d,%v",
				tt.w, tt.h, tt.maxW, tt.maxH, w, h, resized, tt.wantW, tt.wantH, tt.resized)
		}
	}
}
