package validation

import (
	"fmt"
	"slices"
	"strings"

	apperrors "go-palm-insight/internal/errors"
)

// ImageConstraints bounds what the pipeline accepts at the upload boundary
type ImageConstraints struct {
	MaxSizeBytes     int64
	AllowedMIMETypes []string
	MinWidth         int
	MinHeight        int
	MaxWidth         int
	MaxHeight        int
}

// ImageIssue is a single violated constraint
type ImageIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// ImageFacts are the properties of an upload checked against the constraints
type ImageFacts struct {
	Size     int64
	MimeType string
	Width    int
	Height   int
}

// ImageValidator checks size, format and resolution in that order
type ImageValidator struct {
	constraints ImageConstraints
}

func NewImageValidator(constraints ImageConstraints) *ImageValidator {
	return &ImageValidator{constraints: constraints}
}

// Constraints returns the configured bounds
func (v *ImageValidator) Constraints() ImageConstraints {
	return v.constraints
}

// CheckSize validates the byte size only
func (v *ImageValidator) CheckSize(size int64) *ImageIssue {
	if size <= 0 {
		return &ImageIssue{
			Type:    apperrors.ViolationEmpty,
			Message: "Image is empty.",
		}
	}
	if size > v.constraints.MaxSizeBytes {
		return &ImageIssue{
			Type:        apperrors.ViolationTooLarge,
			Message:     fmt.Sprintf("Image is %d bytes; the limit is %d bytes.", size, v.constraints.MaxSizeBytes),
			ActualValue: float64(size),
			Threshold:   float64(v.constraints.MaxSizeBytes),
		}
	}
	return nil
}

// CheckFormat validates the MIME type against the allowed set
func (v *ImageValidator) CheckFormat(mimeType string) *ImageIssue {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if !slices.Contains(v.constraints.AllowedMIMETypes, mt) {
		return &ImageIssue{
			Type:    apperrors.ViolationFormat,
			Message: fmt.Sprintf("Format %q is not supported. Use one of: %s.", mimeType, strings.Join(v.constraints.AllowedMIMETypes, ", ")),
		}
	}
	return nil
}

// CheckResolution validates pixel dimensions
func (v *ImageValidator) CheckResolution(width, height int) *ImageIssue {
	c := v.constraints
	if width < c.MinWidth || height < c.MinHeight {
		return &ImageIssue{
			Type:        apperrors.ViolationResolutionLow,
			Message:     fmt.Sprintf("Image is %dx%d; at least %dx%d is required. Move the camera closer to the hand.", width, height, c.MinWidth, c.MinHeight),
			ActualValue: float64(width * height),
			Threshold:   float64(c.MinWidth * c.MinHeight),
		}
	}
	if width > c.MaxWidth || height > c.MaxHeight {
		return &ImageIssue{
			Type:        apperrors.ViolationResolutionHigh,
			Message:     fmt.Sprintf("Image is %dx%d; at most %dx%d is accepted.", width, height, c.MaxWidth, c.MaxHeight),
			ActualValue: float64(width * height),
			Threshold:   float64(c.MaxWidth * c.MaxHeight),
		}
	}
	return nil
}

// Validate returns every violated constraint, size first
func (v *ImageValidator) Validate(facts ImageFacts) []ImageIssue {
	var issues []ImageIssue
	if issue := v.CheckSize(facts.Size); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := v.CheckFormat(facts.MimeType); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := v.CheckResolution(facts.Width, facts.Height); issue != nil {
		issues = append(issues, *issue)
	}
	return issues
}

// ToError converts an issue into the typed processing error
func (i ImageIssue) ToError() *apperrors.AppError {
	err := apperrors.NewImageProcessingError(i.Type, i.Message, nil)
	if i.Threshold > 0 {
		err.WithDetail("actual", i.ActualValue).WithDetail("limit", i.Threshold)
	}
	return err
}
