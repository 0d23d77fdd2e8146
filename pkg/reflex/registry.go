// Package reflex hosts static and dynamic reflexes and the transient
// subscription table. To avoid the import cycle a direct dependency on
// pkg/sandbox would create (pkg/sandbox imports this package for the
// Executor contract it implements), dynamic-reflex action bodies are executed through a small
// Executor interface injected at construction, the same indirection a
// factory-injected backend/sandbox split gives a skills runtime.
package reflex

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/signalbus"
)

// Op is a predicate comparison operator.
type Op string

const (
	OpGt  Op = "Gt"
	OpLt  Op = "Lt"
	OpGte Op = "Gte"
	OpLte Op = "Lte"
	OpEq  Op = "Eq"
	OpNeq Op = "Neq"
)

// Predicate tests one dotted path of a signal payload against a value.
type Predicate struct {
	Path  string
	Op    Op
	Value any
}

// Trigger pairs a signal kind with the conditions that must all hold for
// a dynamic reflex to fire.
type Trigger struct {
	SignalKind signalbus.SignalKind
	Conditions []Predicate
}

// ReflexKind distinguishes native (Static) from scripted (Dynamic) reflexes.
type ReflexKind string

const (
	KindStatic  ReflexKind = "Static"
	KindDynamic ReflexKind = "Dynamic"
)

// Stats tracks a reflex's firing history.
type Stats struct {
	Success  int
	Fail     int
	LastFire time.Time
}

// NativeReflex is a statically registered, native-callback reflex.
type NativeReflex struct {
	ID      string
	Kind    ReflexKind
	Trigger Trigger
	Action  func(signalbus.Signal)
	Stats   Stats
}

// DynamicReflexDef is the registration input for a runtime reflex.
type DynamicReflexDef struct {
	ID         string
	Trigger    Trigger
	ActionBody string
}

// DynamicReflex is a hot-swappable, scripted reflex. Its action body is
// compiled once at registration via the injected Executor.
type DynamicReflex struct {
	ID         string
	Kind       ReflexKind
	Trigger    Trigger
	ActionBody string
	Compiled   CompiledAction
	Stats      Stats
}

// CompiledAction is whatever the Executor produces from compiling an
// action body; Registry treats it opaquely.
type CompiledAction any

// Executor is the capability Registry needs from the sandbox to compile
// and run dynamic reflex action bodies. pkg/sandbox.Sandbox implements
// this.
type Executor interface {
	Compile(source string) (CompiledAction, error)
	RunCompiled(compiled CompiledAction, bot gamefacade.GameFacade, payload map[string]any) error
}

// transientEntry is a self-destructing subscription keyed by (owner, event).
type transientEntry struct {
	owner     string
	event     string
	callback  func(signalbus.Signal) bool
	once      bool
	expiresAt time.Time
	sub       signalbus.Subscription
}

// Registry hosts static reflexes, dynamic reflexes, and transient
// subscriptions, and evaluates incoming signals against all of them.
type Registry struct {
	mu sync.Mutex

	static  map[signalbus.SignalKind][]*NativeReflex
	dynamic map[string]*DynamicReflex

	transient map[string]*transientEntry // key: owner + "\x00" + event

	bus      *signalbus.Bus
	exec     Executor
	bot      gamefacade.GameFacade
	log      *logger.Logger
	dynSubs  map[string]signalbus.Subscription
	generation uint64
}

// New creates a Registry wired to bus for dispatch, exec for compiling and
// running dynamic reflex bodies, and bot as the capability surface
// dynamic actions receive.
func New(bus *signalbus.Bus, exec Executor, bot gamefacade.GameFacade) *Registry {
	return &Registry{
		static:    make(map[signalbus.SignalKind][]*NativeReflex),
		dynamic:   make(map[string]*DynamicReflex),
		transient: make(map[string]*transientEntry),
		dynSubs:   make(map[string]signalbus.Subscription),
		bus:       bus,
		exec:      exec,
		bot:       bot,
		log:       logger.Default(),
	}
}

// Generation returns a monotonically increasing counter bumped on every
// mutation to the static/dynamic reflex catalog, for StrategicContext's
// cache invalidation.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Registry) bumpGenerationLocked() {
	r.generation++
}

// RegisterStatic registers a native-callback reflex for kind.
func (r *Registry) RegisterStatic(kind signalbus.SignalKind, conditions []Predicate, action func(signalbus.Signal)) *NativeReflex {
	r.mu.Lock()
	defer r.mu.Unlock()

	nr := &NativeReflex{
		ID:      uuid.NewString(),
		Kind:    KindStatic,
		Trigger: Trigger{SignalKind: kind, Conditions: conditions},
		Action:  action,
	}
	r.static[kind] = append(r.static[kind], nr)
	r.bumpGenerationLocked()

	r.bus.Subscribe(kind, func(sig signalbus.Signal) {
		r.fireStatic(nr, sig)
	})
	return nr
}

func (r *Registry) fireStatic(nr *NativeReflex, sig signalbus.Signal) {
	if !evaluateConditions(nr.Trigger.Conditions, sig.Payload) {
		return
	}
	r.mu.Lock()
	nr.Stats.LastFire = time.Now()
	r.mu.Unlock()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.mu.Lock()
				nr.Stats.Fail++
				r.mu.Unlock()
				r.log.ErrorCF("reflex", "static reflex panicked", map[string]any{"id": nr.ID, "panic": rec})
			}
		}()
		nr.Action(sig)
		r.mu.Lock()
		nr.Stats.Success++
		r.mu.Unlock()
	}()
}

// RegisterDynamic hot-swaps a reflex identified by def.ID: any existing
// reflex with the same ID is unsubscribed first, then the new action body
// is compiled once and subscribed.
func (r *Registry) RegisterDynamic(def DynamicReflexDef) (string, error) {
	compiled, err := r.exec.Compile(def.ActionBody)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if sub, ok := r.dynSubs[def.ID]; ok {
		sub.Unsubscribe()
	}

	dr := &DynamicReflex{
		ID:         def.ID,
		Kind:       KindDynamic,
		Trigger:    def.Trigger,
		ActionBody: def.ActionBody,
		Compiled:   compiled,
	}
	r.dynamic[def.ID] = dr
	r.bumpGenerationLocked()
	r.mu.Unlock()

	sub := r.bus.Subscribe(def.Trigger.SignalKind, func(sig signalbus.Signal) {
		r.fireDynamic(dr, sig)
	})

	r.mu.Lock()
	r.dynSubs[def.ID] = sub
	r.mu.Unlock()

	return def.ID, nil
}

func (r *Registry) fireDynamic(dr *DynamicReflex, sig signalbus.Signal) {
	if !evaluateConditions(dr.Trigger.Conditions, sig.Payload) {
		return
	}
	r.mu.Lock()
	dr.Stats.LastFire = time.Now()
	r.mu.Unlock()

	err := r.exec.RunCompiled(dr.Compiled, r.bot, sig.Payload)

	r.mu.Lock()
	if err != nil {
		dr.Stats.Fail++
	} else {
		dr.Stats.Success++
	}
	r.mu.Unlock()

	if err != nil {
		r.log.WarnCF("reflex", "dynamic reflex failed", map[string]any{"id": dr.ID, "error": err.Error()})
		r.bus.Emit(signalbus.SkillFailed, map[string]any{"name": dr.ID, "error": err.Error()})
	}
}

// RegisterTransient attaches callback to event until it self-destructs
// (callback returns true), once fires (if once is set), or ttl elapses.
// It replaces any existing transient subscription with the same
// (owner, event) pair.
func (r *Registry) RegisterTransient(owner, event string, callback func(signalbus.Signal) bool, ttl time.Duration, once bool) {
	key := owner + "\x00" + event

	r.mu.Lock()
	if existing, ok := r.transient[key]; ok {
		existing.sub.Unsubscribe()
	}
	r.mu.Unlock()

	entry := &transientEntry{
		owner:     owner,
		event:     event,
		callback:  callback,
		once:      once,
		expiresAt: time.Now().Add(ttl),
	}

	entry.sub = r.bus.Subscribe(signalbus.SignalKind(event), func(sig signalbus.Signal) {
		r.mu.Lock()
		cur, ok := r.transient[key]
		r.mu.Unlock()
		if !ok || cur != entry {
			return
		}
		if time.Now().After(entry.expiresAt) {
			r.removeTransient(key)
			return
		}

		destruct := entry.callback(sig)
		if entry.once || destruct {
			r.removeTransient(key)
		}
	})

	r.mu.Lock()
	r.transient[key] = entry
	r.mu.Unlock()
}

func (r *Registry) removeTransient(key string) {
	r.mu.Lock()
	entry, ok := r.transient[key]
	if ok {
		delete(r.transient, key)
	}
	r.mu.Unlock()
	if ok {
		entry.sub.Unsubscribe()
	}
}

// PruneExpiredTransients removes transient subscriptions whose TTL has
// elapsed. `corvid agent run` calls it periodically from its prune loop.
func (r *Registry) PruneExpiredTransients() {
	r.mu.Lock()
	now := time.Now()
	var expired []string
	for key, e := range r.transient {
		if now.After(e.expiresAt) {
			expired = append(expired, key)
		}
	}
	r.mu.Unlock()

	for _, key := range expired {
		r.removeTransient(key)
	}
}

// DynamicReflexes returns a snapshot of currently registered dynamic
// reflexes, for StrategicContext's "active learned reflexes" section.
func (r *Registry) DynamicReflexes() []*DynamicReflex {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DynamicReflex, 0, len(r.dynamic))
	for _, dr := range r.dynamic {
		out = append(out, dr)
	}
	return out
}

// StaticReflexes returns a snapshot of every native-callback reflex
// registered for kind, across all signal kinds if kind is empty.
func (r *Registry) StaticReflexes(kind signalbus.SignalKind) []*NativeReflex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind != "" {
		out := make([]*NativeReflex, len(r.static[kind]))
		copy(out, r.static[kind])
		return out
	}
	var out []*NativeReflex
	for _, reflexes := range r.static {
		out = append(out, reflexes...)
	}
	return out
}

// evaluateConditions short-circuits on the first failing predicate.
func evaluateConditions(conditions []Predicate, payload map[string]any) bool {
	for _, p := range conditions {
		v, ok := gamefacade.GetByPath(payload, p.Path)
		if !ok {
			return false
		}
		if !compare(v, p.Op, p.Value) {
			return false
		}
	}
	return true
}

func compare(actual any, op Op, expected any) bool {
	switch op {
	case OpEq:
		return actual == expected
	case OpNeq:
		return actual != expected
	}

	af, aok := toFloat(actual)
	ef, eok := toFloat(expected)
	if !aok || !eok {
		return false
	}
	switch op {
	case OpGt:
		return af > ef
	case OpLt:
		return af < ef
	case OpGte:
		return af >= ef
	case OpLte:
		return af <= ef
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
