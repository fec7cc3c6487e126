package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"validation", Validation("body", "too long"), KindValidation},
		{"wrapped not found", fmt.Errorf("post: %w", NotFound("user", "u1")), KindNotFound},
		{"rate limited", RateLimited(time.Now(), 0), KindRateLimited},
		{"conflict", Conflict("email already registered"), KindConflict},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("mongo: connection reset by peer")
	err := Internal(cause)

	require.Equal(t, "internal error", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestNotFound_MatchesSentinel(t *testing.T) {
	require.ErrorIs(t, NotFound("message", "m1"), ErrNotFound)
	require.ErrorIs(t, Conflict("dup"), ErrConflict)
}

func TestAsError_WrapsForeignErrors(t *testing.T) {
	e := AsError(errors.New("boom"))
	require.Equal(t, KindInternal, e.Kind)
	require.Nil(t, AsError(nil))

	v := Validation("body", "required")
	require.Same(t, v, AsError(fmt.Errorf("wrap: %w", v)))
}
