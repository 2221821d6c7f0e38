package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/slowforest/internal/ir"
)

func TestClock_NewClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, ir.Time(0), c.Current(), "new clock should start at 0")
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, ir.Time(100), c.Current())
	assert.Equal(t, ir.Time(101), c.Next())
}

func TestClock_Next_Monotonic(t *testing.T) {
	c := NewClock()

	prev := c.Next()
	assert.Equal(t, ir.Time(1), prev)
	for i := 0; i < 100; i++ {
		next := c.Next()
		assert.Greater(t, next, prev)
		prev = next
	}
	assert.Equal(t, prev, c.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	times := make(chan ir.Time, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				times <- c.Next()
			}
		}()
	}

	wg.Wait()
	close(times)

	seen := make(map[ir.Time]bool)
	for ts := range times {
		assert.False(t, seen[ts], "time %d issued twice", ts)
		seen[ts] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}

func TestClock_Current_DoesNotAdvance(t *testing.T) {
	c := NewClock()
	c.Next()
	c.Next()

	assert.Equal(t, ir.Time(2), c.Current())
	assert.Equal(t, ir.Time(2), c.Current())
}
