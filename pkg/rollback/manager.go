// Package rollback implements RollbackManager: it only ever talks to the
// world through the SignalBus and SkillLibrary's path-resolution API,
// never by guessing a skill's file layout itself.
package rollback

import (
	"os"
	"sync"
	"time"

	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/signalbus"
)

const (
	MinTrials         = 5
	RollbackThreshold = 0.8
)

// SkillSource is the subset of SkillLibrary RollbackManager needs:
// backup-path resolution and restoration, resolved without ever
// guessing the on-disk layout itself.
type SkillSource interface {
	BackupPath(name string) string
	PathFor(name string) (string, bool)
	RestoreFrom(name, backupContent string) error
}

// health tracks one skill's rolling failure rate.
type health struct {
	failures    int
	trials      int
	lastFailure time.Time
}

// Manager is RollbackManager: it subscribes to SkillSuccess/SkillFailed
// and keeps a backup of the last accepted version of every skill,
// restoring it automatically once a skill's failure rate crosses
// RollbackThreshold.
type Manager struct {
	mu     sync.Mutex
	health map[string]*health

	skills SkillSource
	bus    *signalbus.Bus
	log    *logger.Logger
}

// New wires Manager to bus (for SkillSuccess/SkillFailed subscriptions
// and RuleReverted emission) and skills (for path resolution).
func New(bus *signalbus.Bus, skills SkillSource) *Manager {
	m := &Manager{
		health: make(map[string]*health),
		skills: skills,
		bus:    bus,
		log:    logger.Default(),
	}
	bus.Subscribe(signalbus.SkillSuccess, m.onSkillSuccess)
	bus.Subscribe(signalbus.SkillFailed, m.onSkillFailed)
	return m
}

// OnAdd must be called by the skill-add call path before SkillLibrary
// overwrites the live file: it copies the previous file to
// backups/<name>.bak (if any previous version existed) and zeros the
// health entry for name.
func (m *Manager) OnAdd(name string) error {
	path, existed := m.skills.PathFor(name)

	m.mu.Lock()
	m.health[name] = &health{}
	m.mu.Unlock()

	if !existed {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(m.skills.BackupPath(name), content, 0o644)
}

func (m *Manager) onSkillSuccess(sig signalbus.Signal) {
	name, ok := sig.Payload["name"].(string)
	if !ok {
		return
	}
	m.mu.Lock()
	h, ok := m.health[name]
	if !ok {
		h = &health{}
		m.health[name] = h
	}
	h.trials++
	m.mu.Unlock()
}

func (m *Manager) onSkillFailed(sig signalbus.Signal) {
	name, ok := sig.Payload["name"].(string)
	if !ok {
		return
	}

	backupPath := m.skills.BackupPath(name)
	if _, err := os.Stat(backupPath); err != nil {
		// No backup exists for this skill: there is nothing to roll
		// back to, so failures are not tracked at all.
		return
	}

	m.mu.Lock()
	h, ok := m.health[name]
	if !ok {
		h = &health{}
		m.health[name] = h
	}
	h.failures++
	h.trials++
	h.lastFailure = time.Now()

	shouldRestore := h.trials >= MinTrials && float64(h.failures)/float64(h.trials) >= RollbackThreshold
	m.mu.Unlock()

	if !shouldRestore {
		return
	}
	m.restore(name, backupPath)
}

func (m *Manager) restore(name, backupPath string) {
	content, err := os.ReadFile(backupPath)
	if err != nil {
		m.log.ErrorCF("rollback", "failed to read backup", map[string]any{"name": name, "error": err.Error()})
		return
	}
	if err := m.skills.RestoreFrom(name, string(content)); err != nil {
		m.log.ErrorCF("rollback", "failed to restore from backup", map[string]any{"name": name, "error": err.Error()})
		return
	}

	m.mu.Lock()
	delete(m.health, name)
	m.mu.Unlock()

	m.bus.Emit(signalbus.RuleReverted, map[string]any{
		"name":   name,
		"reason": "failure rate crossed rollback threshold",
	})
}
