package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTradeError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTradeError(ErrKindSubmission, "relay rejected transaction", cause)

	assert.Contains(t, err.Error(), "submission_error")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "typed error",
			err:  NewTradeError(ErrKindOnChain, "program failed", nil),
			want: ErrKindOnChain,
		},
		{
			name: "wrapped typed error",
			err:  fmt.Errorf("attempt 2: %w", NewTradeError(ErrKindConfirmationTimeout, "no status", nil)),
			want: ErrKindConfirmationTimeout,
		},
		{
			name: "untyped error defaults to submission",
			err:  errors.New("boom"),
			want: ErrKindSubmission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRotationEligible(t *testing.T) {
	// Every kind except a build error should rotate to the next backend.
	assert.False(t, IsRotationEligible(NewTradeError(ErrKindBuild, "bad instruction", nil)))
	assert.True(t, IsRotationEligible(NewTradeError(ErrKindSubmission, "rejected", nil)))
	assert.True(t, IsRotationEligible(NewTradeError(ErrKindConfirmationTimeout, "timeout", nil)))
	assert.True(t, IsRotationEligible(NewTradeError(ErrKindOnChain, "reverted", nil)))
	assert.True(t, IsRotationEligible(errors.New("plain failure")))
}
