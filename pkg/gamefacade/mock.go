package gamefacade

import (
	"context"
	"sync"
)

// MockFacade is a deterministic, in-memory GameFacade used by tests and by
// the CLI when `agent run` is given no --game-url. It records every call
// it receives.
type MockFacade struct {
	mu        sync.Mutex
	snapshot  Snapshot
	Calls     []string
	ChatLog   []string
	DugBlocks []string
}

// NewMockFacade creates a mock seeded with the given snapshot.
func NewMockFacade(s Snapshot) *MockFacade {
	if s.Inventory == nil {
		s.Inventory = map[string]int{}
	}
	return &MockFacade{snapshot: s}
}

func (m *MockFacade) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockFacade) Position(context.Context) (Vec3, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Position")
	return m.snapshot.Position, nil
}

func (m *MockFacade) Health(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Health")
	return m.snapshot.Health, nil
}

func (m *MockFacade) Inventory(context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Inventory")
	out := make(map[string]int, len(m.snapshot.Inventory))
	for k, v := range m.snapshot.Inventory {
		out[k] = v
	}
	return out, nil
}

func (m *MockFacade) Snapshot(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Snapshot")
	return m.snapshot, nil
}

func (m *MockFacade) SetHealth(h float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Health = h
}

func (m *MockFacade) Dig(_ context.Context, block string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Dig:" + block)
	m.DugBlocks = append(m.DugBlocks, block)
	return nil
}

func (m *MockFacade) Place(_ context.Context, block string, _ Vec3) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Place:" + block)
	return nil
}

func (m *MockFacade) Look(_ context.Context, _, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Look")
	return nil
}

func (m *MockFacade) Equip(_ context.Context, item, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Equip:" + item + ":" + slot)
	return nil
}

func (m *MockFacade) Chat(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Chat:" + text)
	m.ChatLog = append(m.ChatLog, text)
	return nil
}

func (m *MockFacade) SetControl(_ context.Context, axis string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetControl")
	_ = axis
	_ = on
	return nil
}

func (m *MockFacade) Pathfind(_ context.Context, goal Vec3) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Pathfind")
	m.snapshot.Position = goal
	return nil
}
