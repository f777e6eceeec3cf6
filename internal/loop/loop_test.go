package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/timeutil"
)

func startLoop(t *testing.T, clock timeutil.Clock) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(clock)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t, nil)

	var got []int
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	orig := monitoring.Logf
	defer func() { monitoring.Logf = orig }()
	var logged atomic.Int32
	monitoring.SetLogger(func(string, ...interface{}) { logged.Add(1) })

	l, _ := startLoop(t, nil)
	require.NoError(t, l.Post(func() { panic("boom") }))

	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
	assert.Equal(t, int32(1), logged.Load())
}

func TestLoop_PostAfterUsesClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l, _ := startLoop(t, clock)

	fired := make(chan struct{})
	l.PostAfter(500*time.Millisecond, func() { close(fired) })
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)

	clock.Advance(400 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("delayed task ran early")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}
}

func TestLoop_PostAfterCancel(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l, _ := startLoop(t, clock)

	var ran atomic.Bool
	cancel := l.PostAfter(time.Second, func() { ran.Store(true) })
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()
	cancel()
	require.Eventually(t, func() bool { return clock.Pending() == 0 }, time.Second, time.Millisecond)

	clock.Advance(2 * time.Second)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.False(t, ran.Load())
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	require.ErrorIs(t, l.Post(func() {}), ErrStopped)
	require.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoop_QueueFull(t *testing.T) {
	l := New(nil)
	for i := 0; i < DefaultQueueSize; i++ {
		require.NoError(t, l.Post(func() {}))
	}
	require.ErrorIs(t, l.Post(func() {}), ErrQueueFull)
}
