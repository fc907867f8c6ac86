// Package engine is a single-threaded discrete-event kernel: a simulated clock,
// a time-ordered ready queue of callbacks, cancellable timers and one-shot signals.
//
// Nothing in this package starts goroutines. Callbacks run one at a time from Run,
// so state touched only from callbacks needs no locking.
package engine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
)

// Time is a point or span on the simulated clock, in abstract time units.
type Time int64

// Priority orders events that share the same instant. Primary events run before
// secondary ones; within a class events run in scheduling order.
type Priority uint8

const (
	Primary Priority = iota
	Secondary
)

// ErrPastEvent is returned when scheduling before the current clock.
var ErrPastEvent = errors.New("engine: event scheduled in the past")

// Timer is a handle on a scheduled callback.
type Timer struct {
	at       Time
	priority Priority
	seq      uint64
	fn       func()
	index    int
	fired    bool
	stopped  bool
}

// At reports the instant the timer is due.
func (t *Timer) At() Time { return t.at }

// Engine owns the simulated clock and the ready queue.
type Engine struct {
	now       Time
	seq       uint64
	queue     eventQueue
	processed uint64
	onStep    func(now Time)
}

func New() *Engine {
	return &Engine{}
}

// Now returns the current simulated time.
func (e *Engine) Now() Time { return e.now }

// Processed returns how many callbacks have run so far.
func (e *Engine) Processed() uint64 { return e.processed }

// Pending returns the number of timers still queued.
func (e *Engine) Pending() int { return len(e.queue) }

// OnStep registers a hook called after every processed event.
func (e *Engine) OnStep(fn func(now Time)) { e.onStep = fn }

// Schedule queues fn to run at the absolute time at.
func (e *Engine) Schedule(at Time, p Priority, fn func()) (*Timer, error) {
	if at < e.now {
		return nil, fmt.Errorf("%w: at=%d now=%d", ErrPastEvent, at, e.now)
	}
	e.seq++
	t := &Timer{at: at, priority: p, seq: e.seq, fn: fn}
	heap.Push(&e.queue, t)
	return t, nil
}

// After queues fn to run d time units from now. Negative delays are clamped to zero.
func (e *Engine) After(d Time, p Priority, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	t, _ := e.Schedule(e.now+d, p, fn)
	return t
}

// Stop removes the timer from the queue. It reports whether the call prevented the
// callback from running.
func (e *Engine) Stop(t *Timer) bool {
	if t == nil || t.fired || t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 && t.index < len(e.queue) && e.queue[t.index] == t {
		heap.Remove(&e.queue, t.index)
	}
	return true
}

// Step runs the next due callback, advancing the clock to its instant.
// It returns false once the queue is empty.
func (e *Engine) Step() bool {
	if len(e.queue) == 0 {
		return false
	}
	t := heap.Pop(&e.queue).(*Timer)
	e.now = t.at
	t.fired = true
	e.processed++
	t.fn()
	if e.onStep != nil {
		e.onStep(e.now)
	}
	return true
}

// Run processes events until the queue drains, the context is cancelled, or the next
// event lies beyond until (until <= 0 means no horizon).
func (e *Engine) Run(ctx context.Context, until Time) error {
	for len(e.queue) > 0 {
		if e.processed%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if until > 0 && e.queue[0].at > until {
			e.now = until
			return nil
		}
		e.Step()
	}
	return nil
}

type eventQueue []*Timer

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.at != b.at {
		return a.at < b.at
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
