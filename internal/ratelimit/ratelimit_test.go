package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_ZeroDelay(t *testing.T) {
	r := NewSimpleRateLimiter(0, 0)

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSimpleRateLimiter_SpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(20*time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
	// first call passes at once, the next two wait
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSimpleRateLimiter_Cancelled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestSimpleRateLimiter_SetDelayOrdersBounds(t *testing.T) {
	r := NewSimpleRateLimiter(0, 0)
	r.SetDelay(2*time.Second, time.Second)

	min, max := r.Delay()
	assert.Equal(t, 2*time.Second, min)
	assert.Equal(t, 2*time.Second, max)
}

func TestAdaptiveRateLimiter_BacksOffAndRecovers(t *testing.T) {
	a := NewAdaptiveRateLimiter(0, 0)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delay()
	assert.Equal(t, 250*time.Millisecond, min)
	assert.Equal(t, 250*time.Millisecond, max)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, _ = a.Delay()
	assert.Equal(t, 375*time.Millisecond, min)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delay()
	assert.Less(t, min, 375*time.Millisecond)
	assert.GreaterOrEqual(t, min, time.Duration(0))
}

func TestAdaptiveRateLimiter_NeverBelowConfigured(t *testing.T) {
	a := NewAdaptiveRateLimiter(time.Second, 2*time.Second)

	for i := 0; i < 100; i++ {
		a.RecordSuccess()
	}
	min, max := a.Delay()
	assert.Equal(t, time.Second, min)
	assert.Equal(t, 2*time.Second, max)
}

func TestAdaptiveRateLimiter_Caps(t *testing.T) {
	a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)

	for i := 0; i < 30; i++ {
		a.RecordError()
	}
	min, max := a.Delay()
	assert.Equal(t, 60*time.Second, min)
	assert.Equal(t, 120*time.Second, max)
}
