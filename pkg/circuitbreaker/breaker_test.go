package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(ctx, failing), errBoom)
	}

	require.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
	})
	ctx := context.Background()

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	cb.Execute(ctx, succeeding)
	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)

	require.Equal(t, StateClosed, cb.State())
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		MaxRequests:      2,
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})
	ctx := context.Background()

	cb.Execute(ctx, failing)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeeding))
	require.NoError(t, cb.Execute(ctx, succeeding))
	require.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
	})
	ctx := context.Background()

	cb.Execute(ctx, failing)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.Execute(ctx, failing)
	require.Equal(t, StateOpen, cb.State())
}
