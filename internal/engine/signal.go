package engine

import "errors"

// ErrAlreadyFired is returned by Fire on a signal that has fired before.
var ErrAlreadyFired = errors.New("engine: signal already fired")

// Signal is a one-shot event carrying a payload. Waiters subscribed when it fires are
// woken at the firing instant; a waiter that subscribes afterwards is woken at its own
// subscription instant with the same payload. Each subscription wakes at most once.
type Signal[T any] struct {
	eng     *Engine
	name    string
	fired   bool
	firedAt Time
	payload T
	waiters []*Subscription[T]
}

// Subscription is one waiter on a signal.
type Subscription[T any] struct {
	sig       *Signal[T]
	fn        func(T)
	wake      *Timer
	cancelled bool
}

func NewSignal[T any](eng *Engine, name string) *Signal[T] {
	return &Signal[T]{eng: eng, name: name}
}

func (s *Signal[T]) Name() string { return s.name }

// Fired reports whether the signal has fired, and when.
func (s *Signal[T]) Fired() (bool, Time) { return s.fired, s.firedAt }

// Payload returns the payload of a fired signal.
func (s *Signal[T]) Payload() T { return s.payload }

// Waiters returns the number of live subscriptions not yet scheduled for wake-up.
func (s *Signal[T]) Waiters() int { return len(s.waiters) }

// Fire marks the signal as happened and schedules every current waiter for wake-up
// at the current instant, in subscription order.
func (s *Signal[T]) Fire(payload T) error {
	if s.fired {
		return ErrAlreadyFired
	}
	s.fired = true
	s.firedAt = s.eng.Now()
	s.payload = payload
	waiters := s.waiters
	s.waiters = nil
	for _, w := range waiters {
		w.arm()
	}
	return nil
}

// Subscribe registers fn to be called once the signal has fired.
func (s *Signal[T]) Subscribe(fn func(T)) *Subscription[T] {
	sub := &Subscription[T]{sig: s, fn: fn}
	if s.fired {
		sub.arm()
		return sub
	}
	s.waiters = append(s.waiters, sub)
	return sub
}

func (sub *Subscription[T]) arm() {
	sub.wake = sub.sig.eng.After(0, Primary, func() {
		if sub.cancelled {
			return
		}
		sub.cancelled = true
		sub.fn(sub.sig.payload)
	})
}

// Cancel withdraws the subscription. It is a no-op once the callback has run.
func (sub *Subscription[T]) Cancel() {
	if sub == nil || sub.cancelled {
		return
	}
	sub.cancelled = true
	if sub.wake != nil {
		sub.sig.eng.Stop(sub.wake)
		return
	}
	ws := sub.sig.waiters
	for i, w := range ws {
		if w == sub {
			sub.sig.waiters = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}

// Race is a wait on several signals at once. The first signal to wake the race wins;
// every other subscription is cancelled before fn runs.
type Race[T any] struct {
	subs []*Subscription[T]
	done bool
}

// AnyOf subscribes fn to all signals and returns the race handle.
func AnyOf[T any](signals []*Signal[T], fn func(T)) *Race[T] {
	r := &Race[T]{subs: make([]*Subscription[T], 0, len(signals))}
	for _, sig := range signals {
		r.subs = append(r.subs, sig.Subscribe(func(v T) {
			if r.done {
				return
			}
			r.Cancel()
			fn(v)
		}))
	}
	return r
}

// Cancel withdraws every pending subscription of the race.
func (r *Race[T]) Cancel() {
	if r == nil || r.done {
		return
	}
	r.done = true
	for _, sub := range r.subs {
		sub.Cancel()
	}
	r.subs = nil
}

// Done reports whether the race has been won or cancelled.
func (r *Race[T]) Done() bool { return r == nil || r.done }
