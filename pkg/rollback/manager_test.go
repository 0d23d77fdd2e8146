package rollback

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/signalbus"
)

type fakeSkillSource struct {
	paths    map[string]string
	backups  map[string]string
	restored map[string]string
	existing map[string]bool
}

func newFakeSkillSource() *fakeSkillSource {
	return &fakeSkillSource{
		paths:    make(map[string]string),
		backups:  make(map[string]string),
		restored: make(map[string]string),
		existing: make(map[string]bool),
	}
}

func (f *fakeSkillSource) BackupPath(name string) string { return f.backups[name] }
func (f *fakeSkillSource) PathFor(name string) (string, bool) {
	p, ok := f.existing[name]
	return f.paths[name], p && ok
}
func (f *fakeSkillSource) RestoreFrom(name, backupContent string) error {
	f.restored[name] = backupContent
	return nil
}

func newTestManager(t *testing.T) (*Manager, *signalbus.Bus) {
	t.Helper()
	bus := signalbus.New()
	skills := newFakeSkillSource()
	m := New(bus, skills)
	return m, bus
}

func TestOnAddSkipsBackupWhenNoPreviousVersion(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.OnAdd("new-skill"))
}

func TestSkillFailedWithNoBackupIsNotTracked(t *testing.T) {
	m, bus := newTestManager(t)
	bus.Emit(signalbus.SkillFailed, map[string]any{"name": "untracked-skill"})
	bus.Dispatch()

	m.mu.Lock()
	_, tracked := m.health["untracked-skill"]
	m.mu.Unlock()
	require.False(t, tracked)
}

func TestRepeatedFailuresAboveThresholdTriggersRestore(t *testing.T) {
	m, bus := newTestManager(t)
	src := m.skills.(*fakeSkillSource)
	src.backups["flaky-skill"] = t.TempDir() + "/flaky-skill.bak"
	require.NoError(t, os.WriteFile(src.backups["flaky-skill"], []byte("previous body"), 0o644))

	var reverted map[string]any
	bus.Subscribe(signalbus.RuleReverted, func(sig signalbus.Signal) { reverted = sig.Payload })

	for i := 0; i < MinTrials; i++ {
		bus.Emit(signalbus.SkillFailed, map[string]any{"name": "flaky-skill"})
	}
	bus.Dispatch()

	require.Equal(t, "previous body", src.restored["flaky-skill"])
	require.NotNil(t, reverted)
	require.Equal(t, "flaky-skill", reverted["name"])

	m.mu.Lock()
	_, stillTracked := m.health["flaky-skill"]
	m.mu.Unlock()
	require.False(t, stillTracked, "health entry must be cleared after a restore")
}

func TestFailuresBelowThresholdDoNotTriggerRestore(t *testing.T) {
	m, bus := newTestManager(t)
	src := m.skills.(*fakeSkillSource)
	src.backups["mostly-ok-skill"] = t.TempDir() + "/mostly-ok-skill.bak"
	require.NoError(t, os.WriteFile(src.backups["mostly-ok-skill"], []byte("previous body"), 0o644))

	bus.Emit(signalbus.SkillFailed, map[string]any{"name": "mostly-ok-skill"})
	for i := 0; i < MinTrials-1; i++ {
		bus.Emit(signalbus.SkillSuccess, map[string]any{"name": "mostly-ok-skill"})
	}
	bus.Dispatch()

	require.Empty(t, src.restored)
}

func TestOnAddClearsHealthForRenewedSkill(t *testing.T) {
	m, bus := newTestManager(t)
	src := m.skills.(*fakeSkillSource)
	src.backups["recovering-skill"] = t.TempDir() + "/recovering-skill.bak"
	require.NoError(t, os.WriteFile(src.backups["recovering-skill"], []byte("body"), 0o644))

	bus.Emit(signalbus.SkillFailed, map[string]any{"name": "recovering-skill"})
	bus.Dispatch()

	m.mu.Lock()
	_, tracked := m.health["recovering-skill"]
	m.mu.Unlock()
	require.True(t, tracked)

	require.NoError(t, m.OnAdd("recovering-skill"))

	m.mu.Lock()
	h, stillTracked := m.health["recovering-skill"]
	m.mu.Unlock()
	require.True(t, stillTracked, "OnAdd zeroes the health entry rather than deleting it")
	require.Equal(t, 0, h.failures)
	require.Equal(t, 0, h.trials)
}

