package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestImageProcessingErrorCarriesViolation(t *testing.T) {
	err := NewImageProcessingError(ViolationTooLarge, "image exceeds maximum size", nil)

	if err.Code != CodeImageProcessing {
		t.Errorf("Expected code %s, got %s", CodeImageProcessing, err.Code)
	}
	if err.Violation() != ViolationTooLarge {
		t.Errorf("Expected violation %s, got %q", ViolationTooLarge, err.Violation())
	}
	if err.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", err.StatusCode)
	}
}

func TestTimeoutErrorCarriesBudget(t *testing.T) {
	err := NewTimeoutError("quick analysis timed out", 60000, nil)

	if err.Details["timeout_ms"] != int64(60000) {
		t.Errorf("Expected timeout_ms 60000, got %v", err.Details["timeout_ms"])
	}
	if GetStatusCode(err) != http.StatusGatewayTimeout {
		t.Errorf("Expected status 504, got %d", GetStatusCode(err))
	}
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	aiErr := NewAIServiceError("provider returned 503", errors.New("upstream"))
	reportErr := NewReportGenerationError("career dimension failed", aiErr)
	wrapped := fmt.Errorf("quick analysis: %w", reportErr)

	if !IsCode(wrapped, CodeReportGeneration) {
		t.Error("Expected report generation code in chain")
	}
	if !IsCode(wrapped, CodeAIService) {
		t.Error("Expected AI service code in chain")
	}
	if IsCode(wrapped, CodeTimeout) {
		t.Error("Did not expect timeout code in chain")
	}
	if CodeOf(wrapped) != CodeReportGeneration {
		t.Errorf("Expected outermost code %s, got %s", CodeReportGeneration, CodeOf(wrapped))
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Error("Expected INTERNAL_ERROR for plain errors")
	}
	if GetStatusCode(errors.New("boom")) != http.StatusInternalServerError {
		t.Error("Expected 500 for plain errors")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := NewFeatureExtractionError("failed to decode image", errors.New("unexpected EOF"))
	want := "FEATURE_EXTRACTION_ERROR: failed to decode image (caused by: unexpected EOF)"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
