package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatchesKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"not found matches", NotFound("user %s", "a@b.c"), ErrNotFound, true},
		{"conflict matches", Conflict("duplicate"), ErrConflict, true},
		{"wrapped conflict matches", fmt.Errorf("create: %w", Conflict("duplicate")), ErrConflict, true},
		{"conflict is not not-found", Conflict("duplicate"), ErrNotFound, false},
		{"gateway matches", Gateway("credentials missing"), ErrGateway, true},
		{"plain error never matches", errors.New("boom"), ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSignatureInvalid, KindOf(fmt.Errorf("verify: %w", ErrSignatureInvalid)))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.True(t, IsKind(Validation("amount must be positive"), KindValidation))
	assert.False(t, IsKind(nil, KindValidation))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindGateway, cause, "order creation failed")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Equal(t, "order creation failed", MessageOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}
