// Package signalbus implements the single ordering point for all reactive
// activity in the cognitive runtime. It is a process-wide, in-memory,
// single-threaded-cooperative pub/sub bus: emit enqueues for dispatch on
// the next scheduler tick so that an emitter can never reentrantly
// observe delivery of its own signal.
//
// The event shape (kind/payload/timestamp, per-kind counters) follows a
// fire-and-forget broadcast pattern adapted here into a
// synchronous-enqueue / deferred-dispatch contract.
package signalbus

import (
	"sync"
	"time"

	"github.com/corvidrun/corvid/pkg/logger"
)

// SignalKind is the closed enum of signal kinds the bus recognizes.
type SignalKind string

const (
	HealthLow         SignalKind = "HealthLow"
	HealthCritical    SignalKind = "HealthCritical"
	Hungry            SignalKind = "Hungry"
	ThreatDetected    SignalKind = "ThreatDetected"
	CliffAhead        SignalKind = "CliffAhead"
	LavaNearby        SignalKind = "LavaNearby"
	PlayerDetected    SignalKind = "PlayerDetected"
	EntityAction      SignalKind = "EntityAction"
	BlockChange       SignalKind = "BlockChange"
	Death             SignalKind = "Death"
	Spawn             SignalKind = "Spawn"
	StateChanged      SignalKind = "StateChanged"
	SocialInteraction SignalKind = "SocialInteraction"
	HumanOverride     SignalKind = "HumanOverride"
	CodeRequest       SignalKind = "CodeRequest"
	CodeGenerated     SignalKind = "CodeGenerated"
	SkillSuccess      SignalKind = "SkillSuccess"
	SkillFailed       SignalKind = "SkillFailed"
	RuleReverted      SignalKind = "RuleReverted"

	// SignalBusOverflow is recorded internally when the pending-dispatch
	// queue exceeds the high watermark; it is not a domain signal but
	// shares the same delivery path.
	SignalBusOverflow SignalKind = "SignalBusOverflow"
)

// Signal is a tagged value delivered by the bus.
type Signal struct {
	Kind      SignalKind
	Payload   map[string]any
	Timestamp time.Time
}

// Handler processes a delivered Signal. A Handler that panics must not
// prevent other handlers for the same signal from running; Bus recovers
// around every handler invocation and logs the panic.
type Handler func(Signal)

// Subscription is an unsubscribe handle returned by Subscribe/Once.
type Subscription struct {
	kind SignalKind
	id   uint64
	bus  *Bus
}

// Unsubscribe removes the associated handler. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.kind, s.id)
}

const defaultHighWatermark = 4096

type registeredHandler struct {
	id      uint64
	handler Handler
	once    bool
}

// Bus is the process-wide signal bus.
type Bus struct {
	mu       sync.Mutex
	handlers map[SignalKind][]*registeredHandler
	nextID   uint64
	stats    map[SignalKind]int64

	pending       []Signal
	highWatermark int

	log *logger.Logger
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithHighWatermark overrides the default pending-dispatch high
// watermark (4096).
func WithHighWatermark(n int) Option {
	return func(b *Bus) { b.highWatermark = n }
}

// WithLogger overrides the logger used for handler-panic and overflow
// diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers:      make(map[SignalKind][]*registeredHandler),
		stats:         make(map[SignalKind]int64),
		highWatermark: defaultHighWatermark,
		log:           logger.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers handler for kind, invoked in registration order on
// every future Dispatch call. It returns an unsubscribe handle.
func (b *Bus) Subscribe(kind SignalKind, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], &registeredHandler{id: id, handler: handler})
	return Subscription{kind: kind, id: id, bus: b}
}

// Once registers handler for kind; it auto-unsubscribes after its first
// invocation.
func (b *Bus) Once(kind SignalKind, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], &registeredHandler{id: id, handler: handler, once: true})
	return Subscription{kind: kind, id: id, bus: b}
}

func (b *Bus) unsubscribe(kind SignalKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[kind]
	for i, h := range hs {
		if h.id == id {
			b.handlers[kind] = append(hs[:i], hs[i+1:]...)
			return
		}
	}
}

// Emit synchronously enqueues payload for dispatch under kind. Delivery
// itself happens on the next call to Dispatch (normally driven by the
// Scheduler's tick), never inside Emit — this is what makes emitters
// unable to reentrantly observe their own delivery.
func (b *Bus) Emit(kind SignalKind, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	overflowed := false
	var droppedKind SignalKind

	if len(b.pending) >= b.highWatermark {
		// Drop the oldest payload to make room for this one, then still
		// admit the new signal — the watermark bounds the queue, it does
		// not reject the emitter that happened to trip it.
		droppedKind = b.pending[0].Kind
		b.pending = b.pending[1:]
		overflowed = true
	}

	b.pending = append(b.pending, Signal{Kind: kind, Payload: payload, Timestamp: now})

	if overflowed {
		b.pending = append(b.pending, Signal{
			Kind:      SignalBusOverflow,
			Payload:   map[string]any{"dropped_kind": string(droppedKind)},
			Timestamp: now,
		})
		b.log.WarnCF("signalbus", "overflow: dropped oldest pending signal", map[string]any{
			"dropped_kind": string(droppedKind),
			"watermark":    b.highWatermark,
		})
	}
}

// Dispatch delivers every signal enqueued since the last Dispatch call, in
// FIFO order, to each kind's registered handlers in registration order.
// It is intended to be driven once per scheduler tick.
func (b *Bus) Dispatch() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, sig := range batch {
		b.deliver(sig)
	}
}

func (b *Bus) deliver(sig Signal) {
	b.mu.Lock()
	b.stats[sig.Kind]++
	// Snapshot handlers for this kind so a handler that subscribes/
	// unsubscribes during delivery doesn't mutate the slice we're ranging.
	hs := make([]*registeredHandler, len(b.handlers[sig.Kind]))
	copy(hs, b.handlers[sig.Kind])
	b.mu.Unlock()

	var toRemove []uint64
	for _, h := range hs {
		b.invokeSafely(h.handler, sig)
		if h.once {
			toRemove = append(toRemove, h.id)
		}
	}
	for _, id := range toRemove {
		b.unsubscribe(sig.Kind, id)
	}
}

func (b *Bus) invokeSafely(h Handler, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.log.ErrorCF("signalbus", "handler panicked", map[string]any{
				"kind":  string(sig.Kind),
				"panic": r,
			})
		}
	}()
	h(sig)
}

// Stats returns a snapshot of delivered-signal counts per kind.
func (b *Bus) Stats() map[SignalKind]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[SignalKind]int64, len(b.stats))
	for k, v := range b.stats {
		out[k] = v
	}
	return out
}

// PendingCount reports how many signals are queued awaiting the next
// Dispatch.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
