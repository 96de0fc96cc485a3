package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same code", NewInvalidInputError("x"), ErrInvalidInput, true},
		{"different code", NewInvalidInputError("x"), ErrNotFound, false},
		{"classification is upstream", NewClassificationFailedError(stderrors.New("boom")), ErrUpstreamUnavailable, true},
		{"classification is classification", NewClassificationFailedError(stderrors.New("boom")), ErrClassificationFailed, true},
		{"transcription is upstream", NewTranscriptionFailedError(stderrors.New("boom")), ErrUpstreamUnavailable, true},
		{"upstream is not classification", NewUpstreamUnavailableError("speech", stderrors.New("boom")), ErrClassificationFailed, false},
		{"wrapped", fmt.Errorf("processing: %w", NewNotFoundError("emergency", "e1")), ErrNotFound, true},
		{"plain error", stderrors.New("plain"), ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stderrors.Is(tt.err, tt.target))
		})
	}
}

func TestStandardError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewUpstreamUnavailableError("classification", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Details)
	assert.Equal(t, "classification", err.Metadata["service"])
}

func TestCodeOfAndHasCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewClassificationFailedError(stderrors.New("bad")))

	assert.Equal(t, ErrCodeClassificationFailed, CodeOf(err))
	assert.True(t, HasCode(err, ErrCodeUpstreamUnavailable))
	assert.False(t, HasCode(err, ErrCodeInvalidInput))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"invalid input", NewInvalidInputError("no text"), "INVALID_INPUT", 0},
		{"transcription maps to upstream", NewTranscriptionFailedError(stderrors.New("x")), "UPSTREAM_UNAVAILABLE", 2},
		{"classification", NewClassificationFailedError(stderrors.New("x")), "CLASSIFICATION_FAILED", 2},
		{"insert", NewDatabaseInsertFailedError(stderrors.New("x")), "DATABASE_INSERT_FAILED", 3},
		{"transition", NewInvalidTransitionError("RESOLVED", "CANCELLED"), "INVALID_TRANSITION", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmnErr := ConvertToBPMNError(tt.err)
			require.NotNil(t, bpmnErr)
			assert.Equal(t, tt.wantCode, bpmnErr.Code)
			assert.Equal(t, tt.wantRetries, bpmnErr.Retries)
			vars := bpmnErr.ToErrorVariables()
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "UPSTREAM", GetErrorCategory(ErrCodeClassificationFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseInsertFailed))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeDeliveryFailed))
	assert.Equal(t, "LIFECYCLE", GetErrorCategory(ErrCodeInvalidTransition))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeNotFound))
}

func TestNormalize(t *testing.T) {
	stdErr := Normalize(stderrors.New("unexpected"))
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.False(t, stdErr.Retryable)

	orig := NewNotFoundError("notification", "n1")
	assert.Same(t, orig, Normalize(fmt.Errorf("ctx: %w", orig)))
}
