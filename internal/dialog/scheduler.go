package dialog

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
)

// ErrStopped is returned for work submitted to, or left pending on, a
// scheduler whose Run loop has exited.
var ErrStopped = errors.New("dialog: scheduler stopped")

// ErrSuperseded resolves a conditional delayed task that declined to run
// because the state it was scheduled for had already changed.
var ErrSuperseded = errors.New("dialog: delayed reply superseded")

const taskQueueSize = 64

// Scheduler runs every task on a single executor goroutine.
//
// Immediate tasks (Do) run in submission order. Delayed tasks (After) run in
// order of due time, ties broken by scheduling order. Before any due delayed
// task runs, every immediate task already on the queue runs first, so a
// delayed reply never lands ahead of a turn that was already accepted.
type Scheduler struct {
	tasks   chan task
	wake    chan struct{}
	stopped chan struct{}
	running atomic.Bool
	log     *logging.Logger

	mu          sync.Mutex
	closed      bool
	seq         uint64
	delayed     delayQueue
	outstanding map[*Pending]struct{}
	now         func() time.Time
}

type task struct {
	fn   func()
	done chan struct{}
}

// NewScheduler creates a scheduler. Nothing runs until Run is called.
func NewScheduler(log *logging.Logger) *Scheduler {
	return &Scheduler{
		tasks:       make(chan task, taskQueueSize),
		wake:        make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		log:         log.Sub("scheduler"),
		outstanding: make(map[*Pending]struct{}),
		now:         time.Now,
	}
}

// Run executes tasks until ctx is done. Delayed tasks that have not fired by
// then resolve with ErrStopped. Run may only be called once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("dialog: scheduler already running")
	}
	defer s.shutdown()

	s.log.Debug().Msg("scheduler started")
	for {
		for {
			s.drainQueue()
			d := s.popDue()
			if d == nil {
				break
			}
			s.fire(d)
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait, ok := s.untilNext(); ok {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case t := <-s.tasks:
			s.exec(t)
		case <-timerC:
		case <-s.wake:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Stopped is closed once Run has returned.
func (s *Scheduler) Stopped() <-chan struct{} { return s.stopped }

// Do runs fn on the executor and waits for it to finish. fn must not call Do
// itself.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case s.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		select {
		case <-t.done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// After schedules fn to run on the executor once delay has elapsed. The
// message fn returns resolves the Pending.
func (s *Scheduler) After(delay time.Duration, fn func() domain.Message) *Pending {
	return s.AfterIf(delay, func() (domain.Message, bool) { return fn(), true })
}

// AfterIf is After for replies that may no longer apply when they come due.
// When fn reports false nothing was produced and the Pending resolves with
// ErrSuperseded.
func (s *Scheduler) AfterIf(delay time.Duration, fn func() (domain.Message, bool)) *Pending {
	if delay < 0 {
		delay = 0
	}
	p := &Pending{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.resolve(domain.Message{}, ErrStopped)
		return p
	}
	s.seq++
	p.Due = s.now().Add(delay)
	heap.Push(&s.delayed, &delayedTask{due: p.Due, seq: s.seq, fn: fn, pending: p})
	s.outstanding[p] = struct{}{}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return p
}

// Outstanding returns how many delayed tasks have not fired yet.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// Drain waits until every delayed task, including ones scheduled while
// draining, has resolved.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		waiting := make([]*Pending, 0, len(s.outstanding))
		for p := range s.outstanding {
			waiting = append(waiting, p)
		}
		s.mu.Unlock()

		if len(waiting) == 0 {
			return nil
		}
		for _, p := range waiting {
			select {
			case <-p.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Scheduler) drainQueue() {
	for {
		select {
		case t := <-s.tasks:
			s.exec(t)
		default:
			return
		}
	}
}

func (s *Scheduler) exec(t task) {
	defer close(t.done)
	defer s.recover("task")
	t.fn()
}

func (s *Scheduler) fire(d *delayedTask) {
	var (
		msg domain.Message
		err = errors.New("dialog: delayed task panicked")
	)
	func() {
		defer s.recover("delayed task")
		var ok bool
		msg, ok = d.fn()
		err = nil
		if !ok {
			err = ErrSuperseded
		}
	}()

	s.mu.Lock()
	delete(s.outstanding, d.pending)
	s.mu.Unlock()
	d.pending.resolve(msg, err)
}

func (s *Scheduler) recover(kind string) {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Str("kind", kind).Msg("scheduled work panicked")
	}
}

func (s *Scheduler) popDue() *delayedTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delayed) == 0 || s.delayed[0].due.After(s.now()) {
		return nil
	}
	return heap.Pop(&s.delayed).(*delayedTask)
}

func (s *Scheduler) untilNext() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delayed) == 0 {
		return 0, false
	}
	return s.delayed[0].due.Sub(s.now()), true
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	left := s.delayed
	s.delayed = nil
	s.outstanding = make(map[*Pending]struct{})
	s.mu.Unlock()

	for _, d := range left {
		d.pending.resolve(domain.Message{}, ErrStopped)
	}
	if len(left) > 0 {
		s.log.Debug().Int("dropped", len(left)).Msg("scheduler stopped with delayed tasks pending")
	}
	close(s.stopped)
}

// Pending is the future result of a delayed task.
type Pending struct {
	// Due is when the task becomes eligible to run.
	Due time.Time

	done chan struct{}
	msg  domain.Message
	err  error
}

// Done is closed once the task has run or been abandoned.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the task resolves or ctx is done.
func (p *Pending) Wait(ctx context.Context) (domain.Message, error) {
	select {
	case <-p.done:
		return p.msg, p.err
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

func (p *Pending) resolve(msg domain.Message, err error) {
	p.msg, p.err = msg, err
	close(p.done)
}

type delayedTask struct {
	due     time.Time
	seq     uint64
	fn      func() (domain.Message, bool)
	pending *Pending
}

// delayQueue is a min-heap ordered by (due, seq).
type delayQueue []*delayedTask

func (q delayQueue) Len() int { return len(q) }
func (q delayQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *delayQueue) Push(x any)   { *q = append(*q, x.(*delayedTask)) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
