// Package transcript holds the append-only conversation log.
package transcript

import (
	"sync"
	"time"

	"github.com/soyeahso/arbiter/internal/domain"
)

// Listener is called once for every appended message, in append order.
// Listeners must not append to the transcript they observe.
type Listener func(domain.Message)

// Transcript is an ordered, append-only message log. Message IDs are a
// sequence starting at 1. It is safe for concurrent use.
type Transcript struct {
	deliver sync.Mutex // serializes Append so listeners see append order

	mu        sync.RWMutex
	messages  []domain.Message
	listeners map[int]Listener
	nextSub   int
	now       func() time.Time
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Append adds a message and returns the stored copy.
func (t *Transcript) Append(role domain.Role, content string, options ...string) domain.Message {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	msg := domain.Message{
		ID:        int64(len(t.messages)) + 1,
		Role:      role,
		Content:   content,
		Timestamp: t.now(),
	}
	if len(options) > 0 {
		msg.Options = append([]string(nil), options...)
	}
	t.messages = append(t.messages, msg)
	listeners := make([]Listener, 0, len(t.listeners))
	for i := 0; i < t.nextSub; i++ {
		if fn, ok := t.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(msg.Clone())
	}
	return msg.Clone()
}

// Messages returns a copy of every message.
func (t *Transcript) Messages() []domain.Message {
	return t.Since(0)
}

// Since returns copies of the messages with ID greater than id.
func (t *Transcript) Since(id int64) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id < 0 {
		id = 0
	}
	if id >= int64(len(t.messages)) {
		return []domain.Message{}
	}
	out := make([]domain.Message, 0, int64(len(t.messages))-id)
	for _, m := range t.messages[id:] {
		out = append(out, m.Clone())
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message.
func (t *Transcript) Last() (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return domain.Message{}, false
	}
	return t.messages[len(t.messages)-1].Clone(), true
}

// Subscribe registers fn for future appends and returns a function that
// removes it.
func (t *Transcript) Subscribe(fn Listener) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}
