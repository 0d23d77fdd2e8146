package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/sandbox"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/statestack"
)

func TestNewAgentCommand(t *testing.T) {
	cmd := NewAgentCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "agent", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	require.NotNil(t, run.RunE)
	assert.NotNil(t, run.Flags().Lookup("game-url"))
}

func TestRegisterDefaultReflexesInterruptsOnThreatDetected(t *testing.T) {
	bus := signalbus.New()
	stack := statestack.New(bus)
	bot := gamefacade.NewMockFacade(gamefacade.Snapshot{Health: 20})
	registry := reflex.New(bus, sandbox.New(sandbox.DefaultTimeoutMS), bot)

	registerDefaultReflexes(registry, stack)

	stack.Push("Gather", statestack.PriorityTask, nil)
	bus.Emit(signalbus.ThreatDetected, map[string]any{"source": "zombie"})
	bus.Dispatch()

	top := stack.Current()
	require.NotNil(t, top)
	assert.Equal(t, "Combat", top.Name)
	assert.Equal(t, statestack.PriorityCombat, top.Priority)
}

func TestRegisterDefaultReflexesInterruptsOnHealthCritical(t *testing.T) {
	bus := signalbus.New()
	stack := statestack.New(bus)
	bot := gamefacade.NewMockFacade(gamefacade.Snapshot{Health: 2})
	registry := reflex.New(bus, sandbox.New(sandbox.DefaultTimeoutMS), bot)

	registerDefaultReflexes(registry, stack)

	bus.Emit(signalbus.HealthCritical, map[string]any{"health": 2.0})
	bus.Dispatch()

	top := stack.Current()
	require.NotNil(t, top)
	assert.Equal(t, "Survival", top.Name)
	assert.Equal(t, statestack.PrioritySurvival, top.Priority)
}
