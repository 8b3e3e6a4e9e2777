package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeReport     ErrorType = "report"
	ErrorTypeAIService  ErrorType = "ai_service"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// Code is a stable machine-readable error identifier
type Code string

const (
	CodeImageProcessing   Code = "IMAGE_PROCESSING_ERROR"
	CodeFeatureExtraction Code = "FEATURE_EXTRACTION_ERROR"
	CodeReportGeneration  Code = "REPORT_GENERATION_ERROR"
	CodeTimeout           Code = "TIMEOUT_ERROR"
	CodeAIService         Code = "AI_SERVICE_ERROR"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Image constraint violations, carried in Details["violation"]
const (
	ViolationTooLarge       = "IMAGE_TOO_LARGE"
	ViolationEmpty          = "IMAGE_EMPTY"
	ViolationFormat         = "INVALID_FORMAT"
	ViolationResolutionLow  = "RESOLUTION_TOO_LOW"
	ViolationResolutionHigh = "RESOLUTION_TOO_HIGH"
	ViolationDecode         = "DECODE_FAILED"
	ViolationEncode         = "ENCODE_FAILED"
	ViolationLineDetection  = "LINE_DETECTION_FAILED"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"status_code"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a structured detail and returns the same error
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Violation returns the constraint violation sub-code, if any
func (e *AppError) Violation() string {
	if v, ok := e.Details["violation"].(string); ok {
		return v
	}
	return ""
}

func newError(t ErrorType, code Code, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Code:       code,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewImageProcessingError reports an invalid image or a codec failure.
// violation identifies which constraint failed.
func NewImageProcessingError(violation, message string, cause error) *AppError {
	return newError(ErrorTypeProcessing, CodeImageProcessing, http.StatusUnprocessableEntity, message, cause).
		WithDetail("violation", violation)
}

// NewFeatureExtractionError is raised only for fatal decode failures
func NewFeatureExtractionError(message string, cause error) *AppError {
	return newError(ErrorTypeExtraction, CodeFeatureExtraction, http.StatusUnprocessableEntity, message, cause)
}

// NewReportGenerationError wraps any failure of the generation calls for a report
func NewReportGenerationError(message string, cause error) *AppError {
	return newError(ErrorTypeReport, CodeReportGeneration, http.StatusBadGateway, message, cause)
}

// NewAIServiceError marks failures attributable to the text-generation capability
func NewAIServiceError(message string, cause error) *AppError {
	return newError(ErrorTypeAIService, CodeAIService, http.StatusBadGateway, message, cause)
}

// NewTimeoutError reports an exceeded budget; the budget is always attached
func NewTimeoutError(message string, budgetMs int64, cause error) *AppError {
	return newError(ErrorTypeTimeout, CodeTimeout, http.StatusGatewayTimeout, message, cause).
		WithDetail("timeout_ms", budgetMs)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, CodeValidation, http.StatusBadRequest, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, CodeNotFound, http.StatusNotFound, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, CodeInternal, http.StatusInternalServerError, message, cause)
}

// As returns the outermost AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether any AppError in err's chain carries code
func IsCode(err error, code Code) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// CodeOf returns the code of the outermost AppError, or INTERNAL_ERROR
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
