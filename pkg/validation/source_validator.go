package validation

import (
	"net/url"
	"slices"
	"strings"

	apperrors "go-palm-insight/internal/errors"
)

// Schemes accepted for remote image references
const (
	SchemeHTTP   = "http"
	SchemeHTTPS  = "https"
	SchemeAzBlob = "azblob"
)

// SourceValidator checks image references passed instead of an upload.
// azblob references have the form azblob://<container>/<blob name>.
type SourceValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewSourceValidator accepts http, https and azblob references to any host
func NewSourceValidator() *SourceValidator {
	return &SourceValidator{
		allowedSchemes: []string{SchemeHTTP, SchemeHTTPS, SchemeAzBlob},
	}
}

// NewSourceValidatorWithOptions restricts schemes and, when hosts is non-empty, hosts
func NewSourceValidatorWithOptions(schemes []string, hosts []string) *SourceValidator {
	return &SourceValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// Validate parses ref and returns it when acceptable
func (v *SourceValidator) Validate(ref string) (*url.URL, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, apperrors.NewValidationError("image reference cannot be empty", nil)
	}

	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image reference format", err)
	}
	if !slices.Contains(v.allowedSchemes, parsed.Scheme) {
		return nil, apperrors.NewValidationError("image reference scheme not allowed", nil).
			WithDetail("scheme", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, apperrors.NewValidationError("image reference must have a host", nil)
	}
	if parsed.Scheme == SchemeAzBlob && strings.Trim(parsed.Path, "/") == "" {
		return nil, apperrors.NewValidationError("azblob reference must name a blob", nil)
	}
	if len(v.allowedHosts) > 0 && !slices.Contains(v.allowedHosts, parsed.Host) {
		return nil, apperrors.NewValidationError("image reference host not allowed", nil).
			WithDetail("host", parsed.Host)
	}
	return parsed, nil
}
