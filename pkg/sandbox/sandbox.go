package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/sandbox/jsvm"
)

// forbiddenPatterns is the closed, versioned reject list of tokens that
// make a script ineligible to run. Bumping this list is a deliberate,
// reviewed change — hence the version constant below travels with it.
const ForbiddenListVersion = 1

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bprocess\b`),
	regexp.MustCompile(`\brequire\s*\(`),
	regexp.MustCompile(`\bimport\s`),
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bFunction\s*\(`),
	regexp.MustCompile(`\bwhile\s*\(\s*true\s*\)`),
	regexp.MustCompile(`\bfor\s*\(\s*;\s*;\s*\)`),
	regexp.MustCompile(`\bfs\.`),
	regexp.MustCompile(`\breadFile\b`),
	regexp.MustCompile(`\bwriteFile\b`),
	regexp.MustCompile(`\bchild_process\b`),
	regexp.MustCompile(`\bspawn\s*\(`),
	regexp.MustCompile(`\.exit\s*\(`),
}

// ErrForbiddenToken is returned by the pre-flight static scan.
type ErrForbiddenToken struct{ Pattern string }

func (e *ErrForbiddenToken) Error() string {
	return fmt.Sprintf("sandbox: source matches forbidden pattern %q", e.Pattern)
}

// scanForbidden runs the pre-flight static scan; returns nil if source
// is clean.
func scanForbidden(source string) error {
	for _, p := range forbiddenPatterns {
		if p.MatchString(source) {
			return &ErrForbiddenToken{Pattern: p.String()}
		}
	}
	return nil
}

// ExecuteResult mirrors the execute(source, context) shape.
type ExecuteResult struct {
	Success bool
	Result  any
	Error   string
}

// ValidateResult mirrors validate(source).
type ValidateResult struct {
	Valid      bool
	Checks     []string
	DurationMS int64
}

// RunTestResult mirrors run_test(body, test).
type RunTestResult struct {
	Success bool
	Error   string
}

// Sandbox is CodeSandbox: a capability-reduced executor for untrusted
// skill and reflex-action source. It is also pkg/reflex's Executor
// implementation (Compile/RunCompiled), so dynamic reflexes run through
// the exact same isolate discipline as skill code.
type Sandbox struct {
	defaultTimeout time.Duration
}

// New builds a Sandbox whose Execute/Validate/RunTest calls default to
// timeoutMS when the caller doesn't override it.
func New(timeoutMS int) *Sandbox {
	if timeoutMS <= 0 {
		timeoutMS = DefaultTimeoutMS
	}
	return &Sandbox{defaultTimeout: time.Duration(timeoutMS) * time.Millisecond}
}

// Execute runs source (after sanitization) against contextData and an
// optional bot mock, under timeoutMS (falling back to the sandbox's
// default when timeoutMS <= 0). Every isolate (here: every jsvm.Run
// call) is disposed on return regardless of outcome, since jsvm holds
// no resources beyond the Go heap it already returned.
func (s *Sandbox) Execute(source string, contextData map[string]any, bot gamefacade.GameFacade, timeoutMS int) ExecuteResult {
	timeout := s.defaultTimeout
	if timeoutMS > 0 {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	if err := scanForbidden(source); err != nil {
		return ExecuteResult{Success: false, Error: err.Error()}
	}

	sanitized := Sanitize(source, int(timeout/time.Millisecond))
	prog, err := jsvm.Parse(sanitized)
	if err != nil {
		return ExecuteResult{Success: false, Error: err.Error()}
	}

	globals := buildGlobals(contextData, bot)
	result, err := jsvm.Run(prog, globals, jsvm.Limits{
		Deadline:      time.Now().Add(timeout),
		MaxAllocUnits: 1 << 20,
	})
	if err != nil {
		return ExecuteResult{Success: false, Error: classifyError(err, timeout)}
	}
	return ExecuteResult{Success: true, Result: result}
}

// Validate performs a syntax-only compile and the pre-flight scan,
// returning {valid, checks, duration_ms}; it never executes the body.
func (s *Sandbox) Validate(source string) ValidateResult {
	start := time.Now()
	var checks []string

	if err := scanForbidden(source); err != nil {
		checks = append(checks, "forbidden-token-scan: failed: "+err.Error())
		return ValidateResult{Valid: false, Checks: checks, DurationMS: time.Since(start).Milliseconds()}
	}
	checks = append(checks, "forbidden-token-scan: passed")

	if _, err := jsvm.Parse(source); err != nil {
		checks = append(checks, "syntax-check: failed: "+err.Error())
		return ValidateResult{Valid: false, Checks: checks, DurationMS: time.Since(start).Milliseconds()}
	}
	checks = append(checks, "syntax-check: passed")

	return ValidateResult{Valid: true, Checks: checks, DurationMS: time.Since(start).Milliseconds()}
}

// RunTest defines body then executes test in the same isolate.
// Concatenating the two sources and running them as one program gives
// them the same top-level scope, matching "same isolate" without needing
// a persistent jsvm runtime object.
func (s *Sandbox) RunTest(body, test string, bot gamefacade.GameFacade, timeoutMS int) RunTestResult {
	combined := body + "\n;\n" + test
	res := s.Execute(combined, nil, bot, timeoutMS)
	if !res.Success {
		return RunTestResult{Success: false, Error: res.Error}
	}
	return RunTestResult{Success: true}
}

// Compile implements reflex.Executor: it sanitizes and parses source
// once, at registration time, so dynamic reflexes don't re-parse their
// action body on every firing.
func (s *Sandbox) Compile(source string) (reflex.CompiledAction, error) {
	if err := scanForbidden(source); err != nil {
		return nil, err
	}
	sanitized := Sanitize(source, int(SandwichTimeoutMS))
	prog, err := jsvm.Parse(sanitized)
	if err != nil {
		return nil, err
	}
	return prog, nil
}

// RunCompiled implements reflex.Executor: it runs a program compiled by
// Compile against the firing signal's payload and the live bot facade.
func (s *Sandbox) RunCompiled(compiled reflex.CompiledAction, bot gamefacade.GameFacade, payload map[string]any) error {
	prog, ok := compiled.(*jsvm.Program)
	if !ok {
		return fmt.Errorf("sandbox: compiled action has unexpected type %T", compiled)
	}
	globals := buildGlobals(payload, bot)
	_, err := jsvm.Run(prog, globals, jsvm.Limits{
		Deadline:      time.Now().Add(s.defaultTimeout),
		MaxAllocUnits: 1 << 20,
	})
	return err
}

// buildGlobals assembles the whitelisted injection surface: a
// deep-copied bot snapshot and a deep-copied context_data map. Neither
// is backed by the live facade, so scripted code cannot reach back into
// host state beyond what's handed to it.
func buildGlobals(contextData map[string]any, bot gamefacade.GameFacade) jsvm.Globals {
	g := jsvm.Globals{}
	if contextData != nil {
		g["context_data"] = deepCopy(contextData)
	}
	if bot != nil {
		snap, err := bot.Snapshot(context.Background())
		if err == nil {
			g["bot"] = deepCopy(gamefacade.SnapshotToMap(snap)["bot"])
		}
	}
	return g
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return t
	}
}

// classifyError maps a jsvm run error to a "Timeout after N ms" message
// for deadline exceedances, and passes other messages through unchanged.
func classifyError(err error, timeout time.Duration) string {
	msg := err.Error()
	if strings.Contains(msg, jsvm.ErrTimeout.Error()) {
		return fmt.Sprintf("Timeout after %d ms", timeout.Milliseconds())
	}
	return msg
}
