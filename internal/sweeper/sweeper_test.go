package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service"
)

type fakeExpirer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	calls   chan struct{}
}

func (f *fakeExpirer) ExpirePending(ctx context.Context, cutoff time.Time) (service.ExpireResult, error) {
	f.mu.Lock()
	f.cutoffs = append(f.cutoffs, cutoff)
	f.mu.Unlock()
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return service.ExpireResult{Expired: 1}, nil
}

func TestSweep_UsesTTLCutoff(t *testing.T) {
	f := &fakeExpirer{calls: make(chan struct{}, 1)}
	s := New(f, 24*time.Hour, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	res := s.Sweep(context.Background())
	assert.Equal(t, 1, res.Expired)
	require.Len(t, f.cutoffs, 1)
	assert.Equal(t, now.Add(-24*time.Hour), f.cutoffs[0])
}

func TestSweeper_RunsUntilStopped(t *testing.T) {
	f := &fakeExpirer{calls: make(chan struct{}, 1)}
	s := New(f, time.Hour, 10*time.Millisecond)
	s.Start()

	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	// stopping twice is harmless
	require.NoError(t, s.Stop(ctx))
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	s := New(&fakeExpirer{calls: make(chan struct{}, 1)}, time.Hour, time.Minute)
	assert.NoError(t, s.Stop(context.Background()))
}
