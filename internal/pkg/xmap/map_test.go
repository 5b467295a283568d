package xmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	m := New[string, int]()

	_, ok := m.Load("a")
	assert.False(t, ok)

	v, loaded := m.LoadOrStore("a", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.LoadOrStore("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	m.LoadOrStore("b", 3)

	seen := map[string]int{}
	m.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 3}, seen)

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)
}

func TestMap_ConcurrentLoadOrStore(t *testing.T) {
	m := New[string, *int]()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners = map[*int]struct{}{}
	)

	for i := range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			n := i
			v, _ := m.LoadOrStore("k", &n)

			mu.Lock()
			winners[v] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()
	assert.Len(t, winners, 1)
}
