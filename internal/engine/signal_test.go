package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalWakesWaitersOnce(t *testing.T) {
	eng := New()
	sig := NewSignal[int](eng, "s")
	var woke []Time
	sig.Subscribe(func(v int) {
		assert.Equal(t, 7, v)
		woke = append(woke, eng.Now())
	})
	eng.After(5, Primary, func() { require.NoError(t, sig.Fire(7)) })
	eng.After(6, Primary, func() { assert.ErrorIs(t, sig.Fire(8), ErrAlreadyFired) })
	require.NoError(t, eng.Run(context.Background(), 0))

	assert.Equal(t, []Time{5}, woke)
	fired, at := sig.Fired()
	assert.True(t, fired)
	assert.Equal(t, Time(5), at)
	assert.Equal(t, 7, sig.Payload())
}

func TestSignalLateSubscriberWakesAtSubscriptionTime(t *testing.T) {
	eng := New()
	sig := NewSignal[string](eng, "s")
	var at Time = -1
	eng.After(1, Primary, func() { require.NoError(t, sig.Fire("gone")) })
	eng.After(9, Primary, func() {
		sig.Subscribe(func(v string) {
			at = eng.Now()
			assert.Equal(t, "gone", v)
		})
	})
	require.NoError(t, eng.Run(context.Background(), 0))
	assert.Equal(t, Time(9), at)
}

func TestSubscriptionCancel(t *testing.T) {
	eng := New()
	sig := NewSignal[int](eng, "s")
	called := false
	sub := sig.Subscribe(func(int) { called = true })
	sub.Cancel()
	assert.Equal(t, 0, sig.Waiters())
	eng.After(1, Primary, func() { _ = sig.Fire(1) })
	require.NoError(t, eng.Run(context.Background(), 0))
	assert.False(t, called)
}

func TestAnyOfFirstWinsAndCancelsTheRest(t *testing.T) {
	eng := New()
	a := NewSignal[string](eng, "a")
	b := NewSignal[string](eng, "b")
	c := NewSignal[string](eng, "c")

	var wins []string
	race := AnyOf([]*Signal[string]{a, b, c}, func(v string) { wins = append(wins, v) })

	eng.After(3, Primary, func() {
		_ = b.Fire("b")
		_ = a.Fire("a")
	})
	eng.After(4, Primary, func() { _ = c.Fire("c") })
	require.NoError(t, eng.Run(context.Background(), 0))

	require.Len(t, wins, 1)
	assert.Equal(t, "b", wins[0])
	assert.True(t, race.Done())
	assert.Equal(t, 0, c.Waiters())
	assert.Equal(t, 0, eng.Pending())
}

func TestAnyOfCancelledBeforeFire(t *testing.T) {
	eng := New()
	a := NewSignal[int](eng, "a")
	called := false
	race := AnyOf([]*Signal[int]{a}, func(int) { called = true })
	race.Cancel()
	eng.After(1, Primary, func() { _ = a.Fire(1) })
	require.NoError(t, eng.Run(context.Background(), 0))
	assert.False(t, called)
	assert.Equal(t, 0, a.Waiters())
}
