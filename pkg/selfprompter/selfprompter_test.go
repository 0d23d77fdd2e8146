package selfprompter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPrompter() *Prompter {
	return New(func(ctx context.Context, message string) (string, error) { return "", nil }, nil)
}

func TestStartTransitionsToActive(t *testing.T) {
	p := newTestPrompter()
	require.Equal(t, Stopped, p.State())
	p.Start("go explore")
	require.Equal(t, Active, p.State())
	p.Stop()
	require.Equal(t, Stopped, p.State())
}

func TestPauseThenResume(t *testing.T) {
	p := newTestPrompter()
	p.Start("go explore")
	p.Pause()
	require.Equal(t, Paused, p.State())
	p.Resume()
	require.Equal(t, Active, p.State())
	p.Stop()
}

func TestThreeIdenticalResponsesForceStrategySwitch(t *testing.T) {
	p := newTestPrompter()
	p.state = Active
	p.prompt = "keep exploring"

	p.observe("mine some stone")
	require.NotEqual(t, strategySwitchDirective, p.prompt)
	p.observe("mine some stone")
	require.NotEqual(t, strategySwitchDirective, p.prompt)
	p.observe("mine some stone")
	require.Equal(t, strategySwitchDirective, p.prompt)
	require.Empty(t, p.lastResponses)
}

func TestTwoDegradedMarkersPause(t *testing.T) {
	p := newTestPrompter()
	p.state = Active

	p.observe("sorry, brain disconnected right now")
	require.Equal(t, Active, p.State())
	p.observe("still brain disconnected")
	require.Equal(t, Paused, p.State())
}

func TestThreeEmptyResponsesStop(t *testing.T) {
	notified := ""
	p := New(func(ctx context.Context, message string) (string, error) { return "", nil }, func(msg string) { notified = msg })
	p.state = Active

	p.observe("")
	require.Equal(t, Active, p.State())
	p.observe("")
	require.Equal(t, Active, p.State())
	p.observe("")
	require.Equal(t, Stopped, p.State())
	require.NotEmpty(t, notified)
}

func TestNonStuckVariedResponsesDoNotSwitchStrategy(t *testing.T) {
	p := newTestPrompter()
	p.state = Active
	p.prompt = "keep exploring"

	p.observe("mine some stone")
	p.observe("chop some wood")
	p.observe("build a shelter")
	require.Equal(t, "keep exploring", p.prompt)
}
