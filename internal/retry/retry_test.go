package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential_NextDelay(t *testing.T) {
	p := Exponential{Initial: time.Second, Max: 3 * time.Second}
	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, 2*time.Second, p.NextDelay(1))
	assert.Equal(t, 3*time.Second, p.NextDelay(2))
	assert.Equal(t, time.Second, p.NextDelay(-1))

	uncapped := Exponential{Initial: time.Second}
	assert.Equal(t, 4*time.Second, uncapped.NextDelay(2))
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, NoDelay{}, func(attempt int) error {
		assert.Equal(t, calls, attempt)
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := Do(context.Background(), 3, NoDelay{}, func(int) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsEarly(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), 5, NoDelay{}, func(int) error {
		calls++
		return Permanent(sentinel)
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(Permanent(sentinel)))
	assert.False(t, IsPermanent(sentinel))
	assert.Nil(t, Permanent(nil))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := Do(ctx, 3, Exponential{Initial: time.Hour}, func(int) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestDo_AtLeastOneAttempt(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), 0, nil, func(int) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}
