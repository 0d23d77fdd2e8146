package statestack

import (
	"testing"

	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/stretchr/testify/require"
)

func TestIdleIsPermanentFloor(t *testing.T) {
	s := New(nil)
	require.Equal(t, "Idle", s.Peek().Name)
	_, ok := s.Pop("Idle")
	require.False(t, ok)
	require.Equal(t, 1, s.Depth())
}

func TestPushPopRoundTrip(t *testing.T) {
	s := New(nil)
	ok := s.Push("Gather", PriorityTask, map[string]any{"target": "wood"})
	require.True(t, ok)
	require.Equal(t, "Gather", s.Peek().Name)

	removed, ok := s.Pop("Gather")
	require.True(t, ok)
	require.Equal(t, "Gather", removed.Name)
	require.Equal(t, "Idle", s.Peek().Name)
	require.Nil(t, s.Peek().PausedAt)
}

func TestPushDuplicateNamePromotesAndMergesContext(t *testing.T) {
	s := New(nil)
	s.Push("Build", PriorityTask, map[string]any{"plan": "house"})
	s.Push("Scout", PriorityTask, map[string]any{})
	require.Equal(t, 3, s.Depth())

	ok := s.Push("Build", PriorityTask, map[string]any{"plan": "tower"})
	require.True(t, ok)
	require.Equal(t, 3, s.Depth(), "promotion must not create a duplicate entry")
	require.Equal(t, "Build", s.Peek().Name)
	require.Equal(t, "tower", s.Peek().Context["plan"])
}

func TestPushFailsAtMaxDepthWithoutMutating(t *testing.T) {
	s := New(nil)
	for i := 0; i < MaxDepth-1; i++ {
		require.True(t, s.Push(stateName(i), PriorityTask, nil))
	}
	require.Equal(t, MaxDepth, s.Depth())

	ok := s.Push("overflow", PriorityTask, nil)
	require.False(t, ok)
	require.Equal(t, MaxDepth, s.Depth())
}

func stateName(i int) string {
	return "state-" + string(rune('A'+i))
}

func TestInterruptOnlyPushesOnHigherPriority(t *testing.T) {
	s := New(nil)
	s.Push("Gather", PriorityTask, nil)

	ok := s.Interrupt("LowPrio", PriorityTask, nil)
	require.False(t, ok)
	require.Equal(t, "Gather", s.Peek().Name)

	ok = s.Interrupt("Combat", PriorityCombat, map[string]any{"amount": 5})
	require.True(t, ok)
	require.Equal(t, "Combat", s.Peek().Name)
}

func TestCompleteNeverPopsIdle(t *testing.T) {
	s := New(nil)
	_, ok := s.Complete(true, nil)
	require.False(t, ok)
}

func TestThreatPreemptionScenario(t *testing.T) {
	bus := signalbus.New()
	var changes int
	bus.Subscribe(signalbus.StateChanged, func(signalbus.Signal) { changes++ })

	s := New(bus)
	s.Push("Gather", PriorityTask, nil)

	ok := s.Interrupt("Combat", PriorityCombat, map[string]any{"amount": 5})
	require.True(t, ok)
	bus.Dispatch()
	require.Equal(t, "Combat", s.Peek().Name)

	_, ok = s.Complete(true, "won")
	require.True(t, ok)
	bus.Dispatch()

	require.Equal(t, "Gather", s.Peek().Name)
	require.Nil(t, s.Peek().PausedAt)
	require.Equal(t, 3, changes) // push Gather, push Combat, complete->pop
}

func TestTieBreakFavorsMostRecentlyPushed(t *testing.T) {
	s := New(nil)
	s.Push("A", PrioritySurvival, nil)
	s.Push("B", PrioritySurvival, nil)
	require.Equal(t, "B", s.Peek().Name)
}
