package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	attempts, err := Do(context.Background(), Default(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoReturnsImmediatelyOnNonTransientError(t *testing.T) {
	wantErr := errors.New("permanent")
	calls := 0
	attempts, err := Do(context.Background(), Default(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5}
	attempts, err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return MarkTransient(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3}
	attempts, err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return MarkTransient(errors.New("always flaky"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 10}

	attempts, err := Do(ctx, p, func(ctx context.Context) error {
		return MarkTransient(errors.New("flaky"))
	})
	assert.Error(t, err)
	assert.GreaterOrEqual(t, attempts, 1)
}

func TestIsTransientDistinguishesWrappedErrors(t *testing.T) {
	assert.True(t, IsTransient(MarkTransient(errors.New("x"))))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(MarkTransient(nil)))
}
