package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(3, time.Minute).WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("a"))
	now = now.Add(20 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.Equal(t, 0, l.Remaining("a"))

	// other keys are independent
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Remaining("b"))

	// first hit ages out
	now = now.Add(41 * time.Second)
	assert.Equal(t, 1, l.Remaining("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestLimiterRejectedRequestsDoNotCount(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(1, time.Minute).WithClock(func() time.Time { return now })

	assert.True(t, l.Allow("a"))
	for i := 0; i < 5; i++ {
		assert.False(t, l.Allow("a"))
	}
	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("a"))
}

func TestLimiterSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(5, time.Minute).WithClock(func() time.Time { return now })

	l.Allow("a")
	l.Allow("b")
	now = now.Add(2 * time.Minute)
	l.Allow("c")

	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 4, l.Remaining("c"))
}

func TestLimiterDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, 30, l.Limit())
}

func TestLimiterConcurrent(t *testing.T) {
	l := New(50, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
