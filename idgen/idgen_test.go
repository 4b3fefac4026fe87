package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence(t *testing.T) {
	t.Run("zero value starts at one", func(t *testing.T) {
		var s Sequence
		assert.Equal(t, uint64(0), s.Current())
		assert.Equal(t, uint64(1), s.Next())
		assert.Equal(t, uint64(2), s.Next())
		assert.Equal(t, uint64(2), s.Current())
	})

	t.Run("concurrent callers receive unique IDs", func(t *testing.T) {
		var s Sequence
		const goroutines = 16
		const perGoroutine = 200

		var mu sync.Mutex
		seen := make(map[uint64]bool, goroutines*perGoroutine)

		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perGoroutine; j++ {
					id := s.Next()
					mu.Lock()
					seen[id] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, goroutines*perGoroutine)
		assert.Equal(t, uint64(goroutines*perGoroutine), s.Current())
	})
}
