package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDo_ExhaustsBudgetAndReturnsLastError(t *testing.T) {
	wantErr := errors.New("still broken")
	attempts := 0

	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, attempts)
}

func TestDo_NonRetryableErrorFailsFast(t *testing.T) {
	retryable := errors.New("retryable")
	fatal := errors.New("fatal")

	cfg := fastConfig()
	cfg.RetryableErrors = []error{retryable}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, attempts)
}

func TestDo_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), func() error {
		return errors.New("never succeeds")
	})

	require.ErrorIs(t, err, context.Canceled)
}
