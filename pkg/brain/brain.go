// Package brain implements Brain: a thin, budget-rate-limited facade over
// an opaque LLM Transport. Brain never knows which provider backs it; it
// only enriches prompts with StrategicContext/MemoryBridge/SkillLibrary
// sections and enforces the rolling request budget before handing
// messages to the transport.
package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/memory"
	"github.com/corvidrun/corvid/pkg/skills"
	"github.com/corvidrun/corvid/pkg/strategy"
)

// budgetExhaustedSentinel is the deterministic, neutral text chat/plan
// return when the budget is exhausted; it never leaks internal state.
const budgetExhaustedSentinel = "budget exhausted: try again later"

// ErrBudgetExhausted is the hard error code raises, since synthesized
// code must never silently degrade into placeholder text.
var ErrBudgetExhausted = errors.New("brain: budget exhausted")

const (
	defaultBudgetLimit  = 200
	defaultBudgetWindow = 12 * time.Hour
)

// Budget is a {count, window_start} pair exposed for status reporting;
// it mirrors the window counter Brain's own budget check uses.
type Budget struct {
	Count       int
	WindowStart time.Time
	Limit       int
	Window      time.Duration
}

// Brain is the LLM facade.
type Brain struct {
	transport Transport
	strategic *strategy.Builder
	memoryB   *memory.Bridge
	skillsLib *skills.Library
	log       *logger.Logger

	limiter *rate.Limiter

	mu          sync.Mutex
	windowStart time.Time
	count       int
	limit       int
	window      time.Duration
}

// New builds a Brain over transport, enriching plan/code requests via
// strategic (StrategicContext), memoryB (MemoryBridge), and skillsLib
// (SkillLibrary). limit/window default to 200 requests per 12h when zero.
func New(transport Transport, strategic *strategy.Builder, memoryB *memory.Bridge, skillsLib *skills.Library, limit int, window time.Duration) *Brain {
	if limit <= 0 {
		limit = defaultBudgetLimit
	}
	if window <= 0 {
		window = defaultBudgetWindow
	}
	// Average rate across the window, with burst equal to the full
	// budget. The limiter is built but never consulted: checkBudget's
	// lazy window counter alone decides exhaustion, so a request at
	// count=limit-1 succeeds and one at count=limit does not.
	avgRate := rate.Limit(float64(limit) / window.Seconds())
	return &Brain{
		transport:   transport,
		strategic:   strategic,
		memoryB:     memoryB,
		skillsLib:   skillsLib,
		log:         logger.Default(),
		limiter:     rate.NewLimiter(avgRate, limit),
		windowStart: time.Time{},
		limit:       limit,
		window:      window,
	}
}

// checkBudget lazily resets the rolling window and reports whether a
// request may proceed, incrementing the counter if so.
func (b *Brain) checkBudget() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.count = 0
	}
	if b.count >= b.limit {
		return false
	}
	b.count++
	return true
}

// BudgetSnapshot reports the current window's usage, for status surfaces.
func (b *Brain) BudgetSnapshot() Budget {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Budget{Count: b.count, WindowStart: b.windowStart, Limit: b.limit, Window: b.window}
}

// Chat sends message as the sole user turn. On budget exhaustion it
// returns the neutral sentinel rather than an error, so callers never see
// a hard failure from rate limiting alone.
func (b *Brain) Chat(ctx context.Context, message string) (string, error) {
	if !b.checkBudget() {
		return budgetExhaustedSentinel, nil
	}
	return b.call(ctx, []Message{{Role: "user", Content: message}})
}

// Plan prepends the strategic system prompt (StrategicContext) to query,
// enriches it with memory/skill context, and calls the transport. On
// budget exhaustion it returns the neutral sentinel.
func (b *Brain) Plan(ctx context.Context, worldID, query string, snapshot gamefacade.Snapshot) (string, error) {
	if !b.checkBudget() {
		return budgetExhaustedSentinel, nil
	}

	system := b.strategic.Build(query, snapshot)
	enriched := b.enrichContext(ctx, worldID, query, system)
	messages := []Message{
		{Role: "system", Content: enriched},
		{Role: "user", Content: query},
	}
	return b.call(ctx, messages)
}

// Code additionally inlines the full skill catalog into the user prompt,
// since code synthesis needs concrete signatures to imitate. On budget
// exhaustion it returns ErrBudgetExhausted rather than degrading, since
// synthesized code must never silently stand in for a real response.
func (b *Brain) Code(ctx context.Context, worldID, prompt string) (string, error) {
	if !b.checkBudget() {
		return "", ErrBudgetExhausted
	}

	var catalogText string
	for _, s := range b.skillsLib.Catalog() {
		catalogText += fmt.Sprintf("- %s(%s): %s\n", s.Name, "...", s.Description)
	}

	userPrompt := prompt
	if catalogText != "" {
		userPrompt = fmt.Sprintf("%s\n\n# Available skills\n%s", prompt, catalogText)
	}

	messages := []Message{
		{Role: "system", Content: "You write Minecraft bot skill code. Prefer composing existing skills over primitives."},
		{Role: "user", Content: userPrompt},
	}
	return b.call(ctx, messages)
}

// enrichContext appends a memory-recall section to system, consulting
// MemoryBridge for query-relevant facts from worldID. A recall failure is
// logged and the system prompt is returned unchanged — memory enrichment
// is best-effort, never fatal to planning.
func (b *Brain) enrichContext(ctx context.Context, worldID, query, system string) string {
	if b.memoryB == nil || worldID == "" {
		return system
	}
	result, err := b.memoryB.Recall(ctx, worldID, query, 5)
	if err != nil || len(result.Results) == 0 {
		return system
	}

	section := "# Recalled memory\n"
	for _, r := range result.Results {
		section += "- " + r + "\n"
	}
	return system + "\n\n---\n\n" + section
}

func (b *Brain) call(ctx context.Context, messages []Message) (string, error) {
	text, err := b.transport.Chat(ctx, messages)
	if err != nil {
		b.log.WarnCF("brain", "transport call failed", map[string]any{"error": err.Error()})
		return "brain disconnected", nil
	}
	return text, nil
}
