package signalbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlersFireInRegistrationOrderOncePerEmit(t *testing.T) {
	b := New()
	var order []int

	b.Subscribe(ThreatDetected, func(Signal) { order = append(order, 1) })
	b.Subscribe(ThreatDetected, func(Signal) { order = append(order, 2) })
	b.Subscribe(ThreatDetected, func(Signal) { order = append(order, 3) })

	b.Emit(ThreatDetected, map[string]any{"amount": 5})
	b.Dispatch()

	require.Equal(t, []int{1, 2, 3}, order)
	require.Equal(t, int64(1), b.Stats()[ThreatDetected])
}

func TestEmitDoesNotDeliverReentrantly(t *testing.T) {
	b := New()
	delivered := false
	b.Subscribe(Hungry, func(Signal) { delivered = true })

	b.Emit(Hungry, nil)
	require.False(t, delivered, "Emit must defer delivery to Dispatch")

	b.Dispatch()
	require.True(t, delivered)
}

func TestHandlerPanicDoesNotBlockSiblings(t *testing.T) {
	b := New()
	ran := false
	b.Subscribe(Death, func(Signal) { panic("boom") })
	b.Subscribe(Death, func(Signal) { ran = true })

	b.Emit(Death, nil)
	require.NotPanics(t, func() { b.Dispatch() })
	require.True(t, ran)
}

func TestOnceUnsubscribesAfterFirstInvocation(t *testing.T) {
	b := New()
	count := 0
	b.Once(Spawn, func(Signal) { count++ })

	b.Emit(Spawn, nil)
	b.Dispatch()
	b.Emit(Spawn, nil)
	b.Dispatch()

	require.Equal(t, 1, count)
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New()
	count := 0
	sub := b.Subscribe(CliffAhead, func(Signal) { count++ })
	sub.Unsubscribe()

	b.Emit(CliffAhead, nil)
	b.Dispatch()

	require.Equal(t, 0, count)
}

func TestOverflowDropsOldestAndRecordsDiagnostic(t *testing.T) {
	b := New(WithHighWatermark(2))
	b.Emit(Hungry, map[string]any{"n": 1})
	b.Emit(Hungry, map[string]any{"n": 2})
	b.Emit(Hungry, map[string]any{"n": 3}) // triggers overflow, drops n=1

	var seen []int
	b.Subscribe(Hungry, func(s Signal) { seen = append(seen, s.Payload["n"].(int)) })
	overflowed := false
	b.Subscribe(SignalBusOverflow, func(Signal) { overflowed = true })

	b.Dispatch()

	require.Equal(t, []int{2, 3}, seen)
	require.True(t, overflowed)
}
