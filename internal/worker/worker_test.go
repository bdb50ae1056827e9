package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunProcessesEveryItem(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var completed int

	err := Run(context.Background(), 4, items, func(_ int, item int) error {
		mu.Lock()
		seen[item] = true
		mu.Unlock()
		return nil
	}, func() { completed++ })

	require.NoError(t, err)
	assert.Len(t, seen, len(items))
	assert.Equal(t, len(items), completed)
}

func TestRunEmpty(t *testing.T) {
	called := false
	err := Run(context.Background(), 8, []string{}, func(int, string) error {
		called = true
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestRunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}

	var calls atomic.Int64
	err := Run(context.Background(), 2, items, func(_ int, item int) error {
		calls.Add(1)
		if item == 3 {
			return boom
		}
		return nil
	}, nil)

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "task 3")
	assert.Less(t, calls.Load(), int64(len(items)))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, 2, []int{1, 2, 3}, func(int, int) error { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
