package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/logging"
)

// recorder collects the payloads a set of named handlers receive.
type recorder struct {
	mu    sync.Mutex
	calls []string
	last  Payload
}

func (r *recorder) handler(name string, err error) Handler {
	return func(_ context.Context, p Payload) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		r.last = p
		return err
	}
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestEmit_RunsHandlersInOrder(t *testing.T) {
	m := newTestManager()
	rec := &recorder{}
	m.On(EventAgentCreated, "audit", rec.handler("audit", nil))
	m.On(EventAgentCreated, "notify", rec.handler("notify", nil))
	m.On(EventAgentDeleted, "other", rec.handler("other", nil))

	m.Emit(context.Background(), EventAgentCreated, map[string]any{"name": "Helper", "model": "gpt-4o"})

	assert.Equal(t, []string{"audit", "notify"}, rec.seen())
	assert.Equal(t, EventAgentCreated, rec.last.Event)
	assert.Equal(t, "Helper", rec.last.Data["name"])
	assert.WithinDuration(t, time.Now(), rec.last.Time, time.Minute)
	assert.Equal(t, time.UTC, rec.last.Time.Location())
}

func TestEmit_ErrorDoesNotStopOthers(t *testing.T) {
	m := newTestManager()
	rec := &recorder{}
	m.On(EventGatewayStart, "broken", rec.handler("broken", errors.New("exit status 1")))
	m.On(EventGatewayStart, "fine", rec.handler("fine", nil))

	m.Emit(context.Background(), EventGatewayStart, nil)

	assert.Equal(t, []string{"broken", "fine"}, rec.seen())
}

func TestEmit_UnknownEvent(t *testing.T) {
	m := newTestManager()
	assert.NotPanics(t, func() {
		m.Emit(context.Background(), "no_such_event", nil)
		m.EmitAsync(context.Background(), "no_such_event", nil)
	})
}

func TestEmitAsync(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	wg.Add(2)
	rec := &recorder{}
	for _, name := range []string{"a", "b"} {
		h := rec.handler(name, nil)
		m.On(EventSubAgentsUpdated, name, func(ctx context.Context, p Payload) error {
			defer wg.Done()
			return h(ctx, p)
		})
	}

	m.EmitAsync(context.Background(), EventSubAgentsUpdated, map[string]any{"count": 2})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not finish")
	}
	assert.ElementsMatch(t, []string{"a", "b"}, rec.seen())
}

func TestOff(t *testing.T) {
	m := newTestManager()
	rec := &recorder{}
	m.On(EventWizardCompleted, "drop", rec.handler("drop", nil))
	m.On(EventWizardCompleted, "keep", rec.handler("keep", nil))
	m.On(EventWizardCompleted, "drop", rec.handler("drop-again", nil))
	require.Equal(t, 3, m.Count(EventWizardCompleted))

	m.Off(EventWizardCompleted, "drop")
	m.Emit(context.Background(), EventWizardCompleted, nil)

	assert.Equal(t, 1, m.Count(EventWizardCompleted))
	assert.Equal(t, []string{"keep"}, rec.seen())
}

func TestEvents_Sorted(t *testing.T) {
	m := newTestManager()
	noop := func(context.Context, Payload) error { return nil }

	assert.Empty(t, m.Events())

	m.On(EventTurnReceived, "x", noop)
	m.On(EventAgentDeleted, "y", noop)
	m.On(EventGatewayStop, "z", noop)
	assert.Equal(t, []string{EventAgentDeleted, EventGatewayStop, EventTurnReceived}, m.Events())

	m.Off(EventGatewayStop, "z")
	assert.Equal(t, []string{EventAgentDeleted, EventTurnReceived}, m.Events())
}

func TestAllEvents_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range AllEvents {
		assert.False(t, seen[e], "duplicate event %q", e)
		seen[e] = true
	}
	for _, e := range configEvents {
		assert.True(t, seen[e], "config event %q is not in AllEvents", e)
	}
}
