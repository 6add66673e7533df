package group

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWarner struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingWarner) Warnf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingWarner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

func TestAllocator_NextStartsAtOne(t *testing.T) {
	var a Allocator
	assert.Equal(t, Id(1), a.Next())
	assert.Equal(t, Id(2), a.Next())
	assert.Equal(t, uint64(2), a.Issued())
}

func TestAllocator_NextDistinctUntilWrap(t *testing.T) {
	var a Allocator
	seen := make(map[Id]struct{}, Capacity)
	for i := 0; i < Capacity-1; i++ {
		id := a.Next()
		require.NotEqual(t, Background, id)
		_, dup := seen[id]
		require.False(t, dup, "id %d issued twice", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, Capacity-1)
	assert.Equal(t, uint64(0), a.Wraps())
}

func TestAllocator_WrapSkipsBackground(t *testing.T) {
	w := &recordingWarner{}
	a := New(w)
	for i := 0; i < Capacity-1; i++ {
		a.Next()
	}
	assert.Equal(t, Id(1), a.Next(), "wrapped counter must skip the background id")
	assert.Equal(t, uint64(1), a.Wraps())
	// one high-water warning plus one wrap warning
	assert.Equal(t, 2, w.count())
}

func TestAllocator_ConcurrentNext(t *testing.T) {
	var a Allocator
	const workers = 8
	const perWorker = 4000

	results := make([][]Id, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			out := make([]Id, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				out = append(out, a.Next())
			}
			results[w] = out
		}(w)
	}
	wg.Wait()

	seen := make(map[Id]struct{}, workers*perWorker)
	for _, ids := range results {
		for _, id := range ids {
			_, dup := seen[id]
			require.False(t, dup, "id %d issued twice", id)
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestAllocator_AllocateDistinctFromPriorNext(t *testing.T) {
	var a Allocator
	prior := []Id{a.Next(), a.Next()}

	ids := a.Allocate(3)
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
	assert.NotEqual(t, ids[0], ids[2])
	for _, id := range ids {
		assert.NotContains(t, prior, id)
	}
	assert.Equal(t, []Id{3, 4, 5}, ids)
}

func TestAllocator_AllocateAcrossWrap(t *testing.T) {
	var a Allocator
	a.counter.Store(Capacity - 2)

	ids := a.Allocate(4)
	require.Len(t, ids, 4)
	assert.Equal(t, []Id{Capacity - 1, 1, 2, 3}, ids)
	assert.NotContains(t, ids, Background)
	assert.Equal(t, uint64(1), a.Wraps())
}

func TestAllocator_AllocateZero(t *testing.T) {
	var a Allocator
	assert.Nil(t, a.Allocate(0))
	assert.Equal(t, Id(1), a.Next())
}
