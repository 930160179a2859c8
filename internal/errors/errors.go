/**
 * Custom error types for the Figure Processing Worker
 *
 * Structured errors with stable codes so failed jobs can be stored and
 * surfaced to the annotation front end with a machine-readable reason.
 */

package errors

import (
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Pipeline stage errors
	ErrorFigureExtractionFailed ErrorCode = "FIGURE_EXTRACTION_FAILED"
	ErrorTextExtractionFailed   ErrorCode = "TEXT_EXTRACTION_FAILED"
	ErrorClassificationFailed   ErrorCode = "CLASSIFICATION_FAILED"
	ErrorOCRFailed              ErrorCode = "OCR_FAILED"
	ErrorTableExtractionFailed  ErrorCode = "TABLE_EXTRACTION_FAILED"

	// Request errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorInvalidUpload     ErrorCode = "INVALID_UPLOAD"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewFigureExtractionError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFigureExtractionFailed,
		Message:   "pdffigures2 figure extraction failed",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewTextExtractionError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTextExtractionFailed,
		Message:   "GROBID fulltext extraction failed",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewClassificationError(jobID string, figureIndex int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorClassificationFailed,
		Message:   fmt.Sprintf("figure type classification failed for figure %d", figureIndex),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"figure_index": figureIndex,
		},
		Cause: cause,
	}
}

func NewOCRFailedError(jobID string, figureIndex int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR word detection failed for figure %d", figureIndex),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"figure_index": figureIndex,
		},
		Cause: cause,
	}
}

func NewTableExtractionError(jobID string, figureIndex int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTableExtractionFailed,
		Message:   fmt.Sprintf("plot-to-table extraction failed for figure %d", figureIndex),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"figure_index": figureIndex,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewInvalidUploadError(jobID string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidUpload,
		Message:   reason,
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
