// Package selfprompter implements SelfPrompter: the loop that drives
// autonomous activity when the agent is otherwise idle, emitting a
// synthetic system message to the Brain every cooldown tick and watching
// its own output stream for "stuck", "provider degraded", and "no
// response" patterns.
package selfprompter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/corvidrun/corvid/pkg/logger"
)

// State is one of SelfPrompter's three lifecycle states.
type State string

const (
	Stopped State = "Stopped"
	Active  State = "Active"
	Paused  State = "Paused"
)

const (
	baseCooldown           = 3500 * time.Millisecond
	failurePenaltyPerCount = 1500 * time.Millisecond
	stuckThreshold         = 3
	noResponseThreshold    = 3
	degradedThreshold      = 2
)

// brainDisconnectedMarkers are the sentinel substrings a Brain response
// carries when its transport is unavailable (budget exhausted, or the
// transport itself raised and the caller converted it to a neutral
// sentinel rather than a hard error).
var brainDisconnectedMarkers = []string{
	"budget exhausted",
	"brain disconnected",
}

// Notifier receives user-visible notices SelfPrompter surfaces (the
// no-response transition to Stopped). The CLI/status surface implements
// this; tests can use a slice-recording stub.
type Notifier func(message string)

// ChatFunc is the subset of Brain.Chat SelfPrompter depends on.
type ChatFunc func(ctx context.Context, message string) (string, error)

// Prompter is SelfPrompter.
type Prompter struct {
	mu    sync.Mutex
	state State
	chat  ChatFunc
	log   *logger.Logger
	notify Notifier

	prompt              string
	providerFailures    int
	lastResponses       []string
	consecutiveEmpty    int
	consecutiveDegraded int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Prompter in the Stopped state, driving chat calls through
// chat and surfacing user-visible notices through notify (may be nil).
func New(chat ChatFunc, notify Notifier) *Prompter {
	return &Prompter{
		state:  Stopped,
		chat:   chat,
		log:    logger.Default(),
		notify: notify,
	}
}

// State reports the current lifecycle state.
func (p *Prompter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start transitions to Active and begins the cooldown loop, seeding each
// synthetic message with prompt. Calling Start while already Active
// restarts the loop with the new prompt.
func (p *Prompter) Start(prompt string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.state = Active
	p.prompt = prompt
	p.providerFailures = 0
	p.lastResponses = nil
	p.consecutiveEmpty = 0
	p.consecutiveDegraded = 0
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
}

// Pause transitions to Paused, suspending the loop without clearing
// accumulated detector state.
func (p *Prompter) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Active {
		p.state = Paused
	}
}

// Resume transitions Paused back to Active.
func (p *Prompter) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Paused {
		p.state = Active
	}
}

// Stop transitions to Stopped and halts the loop.
func (p *Prompter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Stopped
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Prompter) cooldown() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return baseCooldown + time.Duration(p.providerFailures)*failurePenaltyPerCount
}

func (p *Prompter) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cooldown()):
		}

		p.mu.Lock()
		active := p.state == Active
		prompt := p.prompt
		p.mu.Unlock()
		if !active {
			continue
		}

		response, err := p.chat(ctx, prompt)
		if err != nil {
			p.mu.Lock()
			p.providerFailures++
			p.mu.Unlock()
			continue
		}
		p.observe(response)
	}
}

// observe feeds one Brain response through the no-response/degraded/
// stuck detectors, in that order: no-response and degraded transition
// the state machine; stuck resets on its own trigger.
func (p *Prompter) observe(response string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if response == "" {
		p.consecutiveEmpty++
		p.consecutiveDegraded = 0
		p.lastResponses = nil
		if p.consecutiveEmpty >= noResponseThreshold {
			p.state = Stopped
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			if p.notify != nil {
				p.notify("self-prompter stopped: no response from brain after repeated attempts")
			}
		}
		return
	}
	p.consecutiveEmpty = 0

	if isDegradedMarker(response) {
		p.consecutiveDegraded++
		if p.consecutiveDegraded >= degradedThreshold {
			p.state = Paused
		}
		return
	}
	p.consecutiveDegraded = 0

	p.lastResponses = append(p.lastResponses, response)
	if len(p.lastResponses) > stuckThreshold {
		p.lastResponses = p.lastResponses[len(p.lastResponses)-stuckThreshold:]
	}
	if isStuck(p.lastResponses) {
		p.lastResponses = nil
		p.prompt = strategySwitchDirective
	}
}

const strategySwitchDirective = "You appear stuck repeating the same response. Switch strategy."

func isStuck(responses []string) bool {
	if len(responses) < stuckThreshold {
		return false
	}
	first := responses[0]
	for _, r := range responses[1:] {
		if r != first {
			return false
		}
	}
	return true
}

func isDegradedMarker(response string) bool {
	lower := strings.ToLower(response)
	for _, marker := range brainDisconnectedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
