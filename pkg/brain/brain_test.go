package brain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/skills"
	"github.com/corvidrun/corvid/pkg/strategy"
)

type fakeTransport struct {
	reply string
	err   error
	calls int
	last  []Message
}

func (f *fakeTransport) Chat(ctx context.Context, messages []Message) (string, error) {
	f.calls++
	f.last = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestBrain(t *testing.T, transport Transport, limit int, window time.Duration) *Brain {
	t.Helper()
	dir := t.TempDir()
	lib, err := skills.New(dir, signalbus.New(), nil)
	require.NoError(t, err)

	registry := reflex.New(signalbus.New(), nil, nil)
	strat := strategy.New(lib, registry, nil, 2000)

	return New(transport, strat, nil, lib, limit, window)
}

func TestChatReturnsTransportReply(t *testing.T) {
	ft := &fakeTransport{reply: "hello there"}
	b := newTestBrain(t, ft, 200, 12*time.Hour)

	reply, err := b.Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", reply)
	require.Equal(t, 1, ft.calls)
}

func TestChatReturnsSentinelOnTransportError(t *testing.T) {
	ft := &fakeTransport{err: errors.New("network down")}
	b := newTestBrain(t, ft, 200, 12*time.Hour)

	reply, err := b.Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "brain disconnected", reply)
}

func TestChatReturnsSentinelWhenBudgetExhausted(t *testing.T) {
	ft := &fakeTransport{reply: "ok"}
	b := newTestBrain(t, ft, 1, 12*time.Hour)

	first, err := b.Chat(context.Background(), "one")
	require.NoError(t, err)
	require.Equal(t, "ok", first)

	second, err := b.Chat(context.Background(), "two")
	require.NoError(t, err)
	require.Equal(t, budgetExhaustedSentinel, second)
	require.Equal(t, 1, ft.calls)
}

func TestCodeReturnsHardErrorWhenBudgetExhausted(t *testing.T) {
	ft := &fakeTransport{reply: "code"}
	b := newTestBrain(t, ft, 1, 12*time.Hour)

	_, err := b.Code(context.Background(), "world-1", "write a skill")
	require.NoError(t, err)

	_, err = b.Code(context.Background(), "world-1", "write another skill")
	require.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestCodeInlinesSkillCatalog(t *testing.T) {
	ft := &fakeTransport{reply: "generated code"}
	b := newTestBrain(t, ft, 200, 12*time.Hour)

	_, err := b.skillsLib.Add("chop-tree", "function run(bot) {}", "chops trees", []string{"wood"})
	require.NoError(t, err)

	reply, err := b.Code(context.Background(), "world-1", "chop more trees")
	require.NoError(t, err)
	require.Equal(t, "generated code", reply)
	require.Len(t, ft.last, 2)
	require.Contains(t, ft.last[1].Content, "# Available skills")
	require.Contains(t, ft.last[1].Content, "chop-tree")
}

func TestPlanPrependsStrategicContext(t *testing.T) {
	ft := &fakeTransport{reply: "plan text"}
	b := newTestBrain(t, ft, 200, 12*time.Hour)

	reply, err := b.Plan(context.Background(), "world-1", "find food", gamefacade.Snapshot{Health: 20})
	require.NoError(t, err)
	require.Equal(t, "plan text", reply)
	require.Len(t, ft.last, 2)
	require.Equal(t, "system", ft.last[0].Role)
	require.Contains(t, ft.last[0].Content, "# Tools")
	require.Equal(t, "find food", ft.last[1].Content)
}

func TestBudgetSnapshotResetsLazilyAfterWindow(t *testing.T) {
	ft := &fakeTransport{reply: "ok"}
	b := newTestBrain(t, ft, 1, 10*time.Millisecond)

	_, err := b.Chat(context.Background(), "one")
	require.NoError(t, err)
	require.Equal(t, 1, b.BudgetSnapshot().Count)

	time.Sleep(20 * time.Millisecond)

	reply, err := b.Chat(context.Background(), "two")
	require.NoError(t, err)
	require.Equal(t, "ok", reply)
	require.Equal(t, 1, b.BudgetSnapshot().Count)
}
