package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
)

// startScheduler runs a scheduler until the test ends.
func startScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(logging.New(nil, "silent"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Stopped()
	})
	return s
}

func msg(content string) domain.Message {
	return domain.Message{Content: content}
}

func TestScheduler_DoRunsInOrder(t *testing.T) {
	s := startScheduler(t)
	ctx := context.Background()

	var got []int
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Do(ctx, func() { got = append(got, i) }))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestScheduler_AfterResolvesPending(t *testing.T) {
	s := startScheduler(t)

	p := s.After(5*time.Millisecond, func() domain.Message { return msg("later") })
	assert.False(t, p.Due.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "later", m.Content)

	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed after Wait returns")
	}
	assert.Equal(t, 0, s.Outstanding())
}

func TestScheduler_AfterIfSuperseded(t *testing.T) {
	s := startScheduler(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := s.AfterIf(time.Millisecond, func() (domain.Message, bool) { return domain.Message{}, false })
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, 0, s.Outstanding())

	p = s.AfterIf(time.Millisecond, func() (domain.Message, bool) { return msg("kept"), true })
	m, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", m.Content)
}

func TestScheduler_DelayedOrderByDueThenSchedule(t *testing.T) {
	s := startScheduler(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) func() domain.Message {
		return func() domain.Message {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return msg(name)
		}
	}

	// Hold the executor so every delayed task is due at once.
	release := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), func() {
			close(blocked)
			<-release
		})
	}()
	<-blocked

	s.After(30*time.Millisecond, record("slow"))
	s.After(10*time.Millisecond, record("first"))
	s.After(10*time.Millisecond, record("second"))
	s.After(0, record("now"))

	time.Sleep(50 * time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"now", "first", "second", "slow"}, order)
}

func TestScheduler_QueuedTurnRunsBeforeDueReply(t *testing.T) {
	s := startScheduler(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	add := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	release := make(chan struct{})
	blocked := make(chan struct{})
	go func() {
		_ = s.Do(ctx, func() {
			close(blocked)
			<-release
		})
	}()
	<-blocked

	// The reply becomes due while the executor is busy.
	p := s.After(0, func() domain.Message { add("reply"); return msg("reply") })

	turnDone := make(chan error, 1)
	go func() { turnDone <- s.Do(ctx, func() { add("turn") }) }()
	require.Eventually(t, func() bool { return len(s.tasks) == 1 }, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-turnDone)
	_, err := p.Wait(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"turn", "reply"}, order)
}

func TestScheduler_DrainWaitsForChainedTasks(t *testing.T) {
	s := startScheduler(t)

	var second *Pending
	var mu sync.Mutex
	s.After(time.Millisecond, func() domain.Message {
		mu.Lock()
		second = s.After(time.Millisecond, func() domain.Message { return msg("second") })
		mu.Unlock()
		return msg("first")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, second)
	select {
	case <-second.Done():
	default:
		t.Fatal("Drain returned before the chained task resolved")
	}
}

func TestScheduler_DrainRespectsContext(t *testing.T) {
	s := startScheduler(t)
	s.After(time.Hour, func() domain.Message { return msg("never") })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Drain(ctx), context.DeadlineExceeded)
}

func TestScheduler_StopResolvesPendingWithErrStopped(t *testing.T) {
	s := NewScheduler(logging.New(nil, "silent"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()

	p := s.After(time.Hour, func() domain.Message { return msg("never") })
	cancel()
	<-s.Stopped()

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	late := s.After(0, func() domain.Message { return msg("late") })
	_, err = late.Wait(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	assert.ErrorIs(t, s.Do(context.Background(), func() {}), ErrStopped)
	assert.Equal(t, 0, s.Outstanding())
}

func TestScheduler_RunTwice(t *testing.T) {
	s := startScheduler(t)
	require.Eventually(t, s.running.Load, time.Second, time.Millisecond)
	assert.Error(t, s.Run(context.Background()))
}

func TestScheduler_PanicDoesNotKillExecutor(t *testing.T) {
	s := startScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, func() { panic("boom") }))

	p := s.After(0, func() domain.Message { panic("delayed boom") })
	_, err := p.Wait(ctx)
	assert.Error(t, err)

	ran := false
	require.NoError(t, s.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestScheduler_DoContextCanceled(t *testing.T) {
	s := NewScheduler(logging.New(nil, "silent"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Not running and the queue has room, so the task is accepted but never
	// runs; the canceled context ends the wait.
	assert.ErrorIs(t, s.Do(ctx, func() {}), context.Canceled)
}
