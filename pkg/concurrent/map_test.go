package concurrent

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Store("a1", 1)
	m.Store("a2", 2)

	v, ok := m.Load("a1")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())

	v, ok = m.LoadAndDelete("a1")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = m.LoadAndDelete("a1")
	assert.False(t, ok)

	m.Delete("a2")
	m.Delete("missing")
	assert.Equal(t, 0, m.Len())
}

func TestLoadAndDeleteHasOneWinner(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Store("turn", 1)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			if _, ok := m.LoadAndDelete("turn"); ok {
				winners.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestMapConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMap[int, int]()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			m.Store(i, i)
			m.Load(i)
			m.Delete(i)
		})
	}
	wg.Wait()

	assert.Equal(t, 0, m.Len())
}
