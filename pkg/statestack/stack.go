// Package statestack implements the priority-ordered stack of active
// intentions: the thing that tells the Scheduler what it is currently
// pursuing. Idle is the permanent floor; the stack is never empty.
package statestack

import (
	"sync"
	"time"

	"github.com/corvidrun/corvid/pkg/signalbus"
)

// Priority levels for stack entries, lowest to highest.
type Priority uint8

const (
	PriorityIdle     Priority = 0
	PriorityTask     Priority = 40
	PrioritySurvival Priority = 60
	PriorityCombat   Priority = 80
	PriorityCritical Priority = 100
)

// MaxDepth bounds the number of simultaneously active states.
const MaxDepth = 10

// State is an intention on the stack.
type State struct {
	Name      string
	Priority  Priority
	Context   map[string]any
	StartTime time.Time
	PausedAt  *time.Time
}

// HistoryEntry records the outcome of a completed (non-Idle) state, for
// the Scheduler to consult when deciding what to retry or escalate.
type HistoryEntry struct {
	Name    string
	Success bool
	Result  any
	EndTime time.Time
}

// Stack is the priority-ordered stack of active states. The bottom entry
// is always named "Idle" at PriorityIdle; it can never be popped.
type Stack struct {
	mu      sync.Mutex
	entries []*State
	history []HistoryEntry
	bus     *signalbus.Bus
}

// New creates a Stack seeded with the permanent Idle floor.
func New(bus *signalbus.Bus) *Stack {
	return &Stack{
		entries: []*State{{Name: "Idle", Priority: PriorityIdle, Context: map[string]any{}, StartTime: time.Now()}},
		bus:     bus,
	}
}

func (s *Stack) emitStateChanged() {
	if s.bus == nil {
		return
	}
	top := s.topLocked()
	s.bus.Emit(signalbus.StateChanged, map[string]any{
		"top":   top.Name,
		"depth": len(s.entries),
	})
}

// indexOfLocked returns the index of the state named name, or -1.
func (s *Stack) indexOfLocked(name string) int {
	for i, e := range s.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// topIndexLocked returns the index of the current top: the highest
// priority, ties broken by recency (later index = more recently pushed).
func (s *Stack) topIndexLocked() int {
	best := 0
	for i := 1; i < len(s.entries); i++ {
		if s.entries[i].Priority >= s.entries[best].Priority {
			best = i
		}
	}
	return best
}

func (s *Stack) topLocked() *State {
	return s.entries[s.topIndexLocked()]
}

// Push adds a new state, or promotes an existing same-named state to the
// top and merges its context. Returns false (without mutating the stack)
// if the stack is already at MaxDepth and the name is not already present.
func (s *Stack) Push(name string, priority Priority, context map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOfLocked(name); idx >= 0 {
		existing := s.entries[idx]
		merged := make(map[string]any, len(existing.Context)+len(context))
		for k, v := range existing.Context {
			merged[k] = v
		}
		for k, v := range context {
			merged[k] = v
		}
		existing.Context = merged
		existing.Priority = priority
		// Promote: move to the end (most recent) so tie-breaking favors it.
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		s.entries = append(s.entries, existing)
		s.emitStateChanged()
		return true
	}

	if len(s.entries) >= MaxDepth {
		return false
	}

	prevTop := s.topLocked()
	if prevTop.PausedAt == nil {
		now := time.Now()
		prevTop.PausedAt = &now
	}

	ctxCopy := make(map[string]any, len(context))
	for k, v := range context {
		ctxCopy[k] = v
	}
	s.entries = append(s.entries, &State{
		Name:      name,
		Priority:  priority,
		Context:   ctxCopy,
		StartTime: time.Now(),
	})
	s.emitStateChanged()
	return true
}

// Interrupt is the sole non-programmer entry point for reflexes: it pushes
// only if priority strictly exceeds the current top's priority.
func (s *Stack) Interrupt(name string, priority Priority, context map[string]any) bool {
	s.mu.Lock()
	curPriority := s.topLocked().Priority
	s.mu.Unlock()

	if priority <= curPriority {
		return false
	}
	return s.Push(name, priority, context)
}

// Pop removes the named state and resumes the new top by clearing its
// PausedAt. Idle can never be popped. Returns the removed state, or
// (nil, false) if name is not present or is "Idle".
//
// Per the Open Question in DESIGN.md, this is the *named* search-and-
// remove form; there is deliberately no top-of-stack-only Pop.
func (s *Stack) Pop(name string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "Idle" {
		return nil, false
	}
	idx := s.indexOfLocked(name)
	if idx < 0 {
		return nil, false
	}

	removed := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)

	newTop := s.topLocked()
	newTop.PausedAt = nil

	s.emitStateChanged()
	return removed, true
}

// Complete pops the current top (if it is not Idle) and records a history
// entry with its outcome, success or failure, readable through History.
func (s *Stack) Complete(success bool, result any) (*State, bool) {
	s.mu.Lock()
	top := s.topLocked()
	if top.Name == "Idle" {
		s.mu.Unlock()
		return nil, false
	}
	name := top.Name
	s.mu.Unlock()

	removed, ok := s.Pop(name)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	s.history = append(s.history, HistoryEntry{
		Name:    name,
		Success: success,
		Result:  result,
		EndTime: time.Now(),
	})
	s.mu.Unlock()

	return removed, true
}

// Peek returns the current top state without modification.
func (s *Stack) Peek() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topLocked()
}

// Current is an alias for Peek.
func (s *Stack) Current() *State { return s.Peek() }

// CurrentPriority returns the priority of the current top state.
func (s *Stack) CurrentPriority() Priority {
	return s.Peek().Priority
}

// Has reports whether a state named name is currently on the stack.
func (s *Stack) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(name) >= 0
}

// Depth returns the number of active states.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// History returns a copy of completed-state history entries.
func (s *Stack) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
