package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepStale(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestPresenceSweeperRunsAtStartAndOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	p := NewPresenceSweeper(sweeper, "@every 1s", zap.NewNop())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
}

func TestPresenceSweeperRejectsBadSchedule(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("boom")}
	p := NewPresenceSweeper(sweeper, "not a schedule", zap.NewNop())

	assert.Error(t, p.Start(context.Background()))
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
