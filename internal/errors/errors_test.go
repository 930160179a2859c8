package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCodes(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *ProcessingError
		code ErrorCode
	}{
		{"figure extraction", NewFigureExtractionError("j1", cause), ErrorFigureExtractionFailed},
		{"text extraction", NewTextExtractionError("j1", cause), ErrorTextExtractionFailed},
		{"classification", NewClassificationError("j1", 2, cause), ErrorClassificationFailed},
		{"ocr", NewOCRFailedError("j1", 2, cause), ErrorOCRFailed},
		{"table extraction", NewTableExtractionError("j1", 2, cause), ErrorTableExtractionFailed},
		{"storage", NewStorageFailedError("j1", cause), ErrorStorageFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, "j1", tt.err.JobID)
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestPerFigureErrorsCarryFigureIndex(t *testing.T) {
	cause := errors.New("tesseract crashed")

	for _, err := range []*ProcessingError{
		NewOCRFailedError("j2", 3, cause),
		NewTableExtractionError("j2", 3, cause),
		NewClassificationError("j2", 3, cause),
	} {
		details := err.ToMap()
		assert.Equal(t, 3, details["figure_index"])
		assert.Equal(t, "tesseract crashed", details["cause"])
	}
}

func TestToMapWithoutCause(t *testing.T) {
	err := NewInvalidUploadError("j3", "File must be a PDF.")
	details := err.ToMap()

	require.Equal(t, "INVALID_UPLOAD", details["error_code"])
	assert.Equal(t, "File must be a PDF.", details["message"])
	assert.NotContains(t, details, "cause")
}
