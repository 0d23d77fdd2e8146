// Package safety implements SafetySandwich: the sole admission pipeline
// for LLM-generated skill code, layered directly on pkg/sandbox.
package safety

import (
	"fmt"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/sandbox"
)

// LayerResult records one admission layer's outcome. Behavioral is
// "skipped" (not "pass") when the caller supplied no test.
type LayerResult string

const (
	LayerPass    LayerResult = "pass"
	LayerFail    LayerResult = "fail"
	LayerSkipped LayerResult = "skipped"
)

// Verdict is SafetySandwich's {valid, layers, reasoning} output.
type Verdict struct {
	Valid     bool
	Static    LayerResult
	Logical   LayerResult
	Behavioral LayerResult
	Reasoning string
}

// Request is the {code, test?} input to Review.
type Request struct {
	Code string
	Test string // empty means "no behavioral test supplied"
}

// Sandwich runs candidate skill code through the static/logical/
// behavioral layers, stopping at the first failure.
type Sandwich struct {
	sb  *sandbox.Sandbox
	bot gamefacade.GameFacade
}

// New builds a Sandwich that test-drives candidate code against bot
// (a mock is appropriate here — admission never touches the live
// world).
func New(sb *sandbox.Sandbox, bot gamefacade.GameFacade) *Sandwich {
	return &Sandwich{sb: sb, bot: bot}
}

// Review runs req through all three layers.
func (s *Sandwich) Review(req Request) Verdict {
	v := Verdict{}

	// Layer 1: static — forbidden-token scan + syntax-only compile.
	vr := s.sb.Validate(req.Code)
	if !vr.Valid {
		v.Static = LayerFail
		v.Logical = LayerSkipped
		v.Behavioral = LayerSkipped
		v.Reasoning = "static layer rejected: " + lastCheck(vr.Checks)
		return v
	}
	v.Static = LayerPass

	// Layer 2: logical — no-argument evaluation under a 2s cap, source
	// must load and run without crashing.
	res := s.sb.Execute(req.Code, nil, s.bot, sandbox.SandwichTimeoutMS)
	if !res.Success {
		v.Logical = LayerFail
		v.Behavioral = LayerSkipped
		v.Reasoning = fmt.Sprintf("logical layer rejected: %s", res.Error)
		return v
	}
	v.Logical = LayerPass

	// Layer 3: behavioral — only if a test was supplied.
	if req.Test == "" {
		v.Behavioral = LayerSkipped
		v.Valid = true
		v.Reasoning = "all layers passed (behavioral skipped: no test supplied)"
		return v
	}

	rt := s.sb.RunTest(req.Code, req.Test, s.bot, sandbox.SandwichTimeoutMS)
	if !rt.Success {
		v.Behavioral = LayerFail
		v.Reasoning = fmt.Sprintf("behavioral layer rejected: %s", rt.Error)
		return v
	}
	v.Behavioral = LayerPass
	v.Valid = true
	v.Reasoning = "all layers passed"
	return v
}

func lastCheck(checks []string) string {
	if len(checks) == 0 {
		return "no checks recorded"
	}
	return checks[len(checks)-1]
}
