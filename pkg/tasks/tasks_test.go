package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	mu       sync.Mutex
	calls    map[uint]int
	failures int
}

func (p *countingProcessor) Process(_ context.Context, task IngestTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[task.DocumentID]++
	if p.calls[task.DocumentID] <= p.failures {
		return errors.New("transient")
	}
	return nil
}

func TestLocalDispatcher_ProcessesEveryTask(t *testing.T) {
	p := &countingProcessor{calls: map[uint]int{}}
	d := NewLocalDispatcher(p, 3, 16, 1)

	for i := uint(1); i <= 10; i++ {
		require.NoError(t, d.Dispatch(context.Background(), IngestTask{DocumentID: i}))
	}
	d.Close()

	assert.Len(t, p.calls, 10)
	for _, n := range p.calls {
		assert.Equal(t, 1, n)
	}
}

func TestLocalDispatcher_RetriesUpToMaxAttempts(t *testing.T) {
	p := &countingProcessor{calls: map[uint]int{}, failures: 5}
	d := NewLocalDispatcher(p, 1, 1, 3)
	require.NoError(t, d.Dispatch(context.Background(), IngestTask{DocumentID: 1}))
	d.Close()

	assert.Equal(t, 3, p.calls[1])
}

func TestLocalDispatcher_ClosedRejects(t *testing.T) {
	d := NewLocalDispatcher(&countingProcessor{calls: map[uint]int{}}, 1, 1, 1)
	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Dispatch(context.Background(), IngestTask{DocumentID: 1}), ErrQueueClosed)
}
