package simerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("step 3: %w", InvariantViolation("price index %f", -1.0))

	assert.Equal(t, KindInvariantViolation, KindOf(err))
	assert.True(t, IsFatal(err))
	assert.True(t, Is(err, KindInvariantViolation))
}

func TestKindOf_PlainError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, Kind(""), KindOf(err))
	assert.False(t, IsFatal(err))
}

func TestFatalKinds(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindInvalidIntent, false},
		{KindInsufficientFunds, false},
		{KindMarketState, false},
		{KindConfiguration, true},
		{KindInvariantViolation, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}

func TestError_Message(t *testing.T) {
	err := InvalidIntent("household", 7, "negative quantity %v", -2.0).WithStage("production_trading")

	assert.Equal(t,
		"INVALID_INTENT: negative quantity -2 (household=7) [stage=production_trading]",
		err.Error())
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Kind: KindConfiguration, Message: "load", Err: cause}

	assert.ErrorIs(t, err, cause)
}
