package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFailer struct {
	calls     atomic.Int32
	olderThan time.Time
	reason    string
	n         int64
	err       error
}

func (f *fakeFailer) FailStale(olderThan time.Time, reason string) (int64, error) {
	f.calls.Add(1)
	f.olderThan, f.reason = olderThan, reason
	return f.n, f.err
}

func TestSweepOnce(t *testing.T) {
	f := &fakeFailer{n: 2}
	s := NewSweeper(f, 45*time.Minute, time.Minute)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	n, err := s.SweepOnce()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, fixed.Add(-45*time.Minute), f.olderThan)
	assert.Equal(t, StaleReason, f.reason)
}

func TestSweepOnce_Error(t *testing.T) {
	f := &fakeFailer{err: errors.New("db down")}
	s := NewSweeper(f, time.Minute, time.Minute)

	_, err := s.SweepOnce()
	assert.Error(t, err)
}

func TestStart_RunsJob(t *testing.T) {
	f := &fakeFailer{}
	s := NewSweeper(f, time.Minute, 20*time.Millisecond)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return f.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_RejectsInvalidSchedule(t *testing.T) {
	s := NewSweeper(&fakeFailer{}, 0, time.Minute)
	assert.Error(t, s.Start())
}
