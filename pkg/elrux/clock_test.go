package elrux

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClock_StrictlyMonotonic(t *testing.T) {
	c := NewClock()

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		next := c.Now()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestClock_StrictlyMonotonic_Concurrent(t *testing.T) {
	c := NewClock()

	const goroutines = 16
	const perGoroutine = 200

	results := make([][]int64, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		results[g] = make([]int64, perGoroutine)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				results[g][i] = c.Now()
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool, goroutines*perGoroutine)
	for _, r := range results {
		for _, ts := range r {
			require.False(t, seen[ts], "timestamp %d observed twice", ts)
			seen[ts] = true
		}
	}
}
