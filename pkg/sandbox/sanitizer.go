// Package sandbox implements CodeSandbox (component E) and its
// CodeSanitizer preprocessing step (component D): a capability-reduced
// executor for untrusted skill/reflex bodies, built on the hand-written
// pkg/sandbox/jsvm interpreter (see that package's doc comment for why
// no third-party script engine is used).
package sandbox

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/corvidrun/corvid/pkg/sandbox/jsvm"
)

// DefaultTimeoutMS is CodeSandbox's default wall-time cap.
const DefaultTimeoutMS = 5000

// SandwichTimeoutMS is the cap SafetySandwich's behavioral layer uses
// when test-driving candidate code.
const SandwichTimeoutMS = 2000

type patch struct {
	pos  int
	text string
}

// Sanitize parses source and injects a loop-timeout guard into the body
// of every loop-bearing node, plus a `let <start> = Date.now()` at the
// top of whichever function (or the top-level program) encloses it.
// Loops are found by walking statements only: a loop inside a function
// expression (such as a callback passed to forEach) gets no guard.
// Patches are applied in reverse source-position order so earlier
// offsets stay valid. If source fails to parse, it is returned
// unchanged — the syntax error surfaces later, from CodeSandbox itself.
func Sanitize(source string, timeoutMS int) string {
	prog, err := jsvm.Parse(source)
	if err != nil {
		return source
	}

	w := &sanitizeWalker{timeoutMS: timeoutMS, seenScopes: map[int]bool{}}
	w.walkProgram(prog, 0)

	if len(w.patches) == 0 {
		return source
	}

	sort.Slice(w.patches, func(i, j int) bool { return w.patches[i].pos > w.patches[j].pos })

	out := source
	for _, p := range w.patches {
		if p.pos < 0 || p.pos > len(out) {
			continue
		}
		out = out[:p.pos] + p.text + out[p.pos:]
	}
	return out
}

type sanitizeWalker struct {
	timeoutMS  int
	patches    []patch
	seenScopes map[int]bool // function-scope entry pos -> start-var already declared
}

// scopeVar returns the start-timestamp variable name for the function
// (or top-level program) beginning at entryPos, declaring it the first
// time that scope is seen.
func (w *sanitizeWalker) scopeVar(entryPos int) string {
	name := "__jsvm_start_" + strconv.Itoa(entryPos)
	if !w.seenScopes[entryPos] {
		w.seenScopes[entryPos] = true
		w.patches = append(w.patches, patch{
			pos:  entryPos,
			text: fmt.Sprintf("let %s = Date.now(); ", name),
		})
	}
	return name
}

func (w *sanitizeWalker) guardText(startVar string) string {
	return fmt.Sprintf(
		"if (Date.now() - %s > %d) { throw \"Timeout after %d ms\"; } ",
		startVar, w.timeoutMS, w.timeoutMS,
	)
}

func (w *sanitizeWalker) walkProgram(prog *jsvm.Program, entryPos int) {
	for _, stmt := range prog.Body {
		w.walkStmt(stmt, entryPos)
	}
}

// walkStmt recurses through every statement, threading the enclosing
// function's entryPos down so nested loops guard against the right
// start timestamp even across nested function declarations. The start
// variable itself is declared lazily (scopeVar), only once a loop
// actually needs it, so functions with no loops are left untouched.
func (w *sanitizeWalker) walkStmt(n jsvm.Node, entryPos int) {
	if jsvm.IsLoop(n) {
		w.injectLoopGuard(n, entryPos)
	}

	switch s := n.(type) {
	case *jsvm.BlockStmt:
		for _, stmt := range s.Body {
			w.walkStmt(stmt, entryPos)
		}
	case *jsvm.IfStmt:
		w.walkStmt(s.Then, entryPos)
		if s.Else != nil {
			w.walkStmt(s.Else, entryPos)
		}
	case *jsvm.WhileStmt:
		w.walkStmt(s.Body, entryPos)
	case *jsvm.DoWhileStmt:
		w.walkStmt(s.Body, entryPos)
	case *jsvm.ForStmt:
		w.walkStmt(s.Body, entryPos)
	case *jsvm.ForInStmt:
		w.walkStmt(s.Body, entryPos)
	case *jsvm.FunctionDecl:
		w.walkFunctionBody(s.Body)
	}
}

func (w *sanitizeWalker) walkFunctionBody(body *jsvm.BlockStmt) {
	if body.Pos < 0 {
		// Synthetic (non-block) body: no valid source offset to patch
		// the declaration into, so the body is not walked and loops
		// inside it get no guard.
		return
	}
	for _, stmt := range body.Body {
		w.walkStmt(stmt, body.Pos+1)
	}
}

// injectLoopGuard inserts the timeout check at the top of the loop's
// body block. A brace-less single-statement body (Pos == -1, produced by
// parseLoopBody) is wrapped in synthesized braces first — per spec, "if a
// loop's body is a single expression rather than a block, wrap it in a
// block first" — using the statement's own source bounds recorded by the
// parser as SynthStart/SynthEnd, so the guard still lands even without a
// source brace to patch after.
func (w *sanitizeWalker) injectLoopGuard(n jsvm.Node, entryPos int) {
	var body jsvm.Node
	switch s := n.(type) {
	case *jsvm.WhileStmt:
		body = s.Body
	case *jsvm.DoWhileStmt:
		body = s.Body
	case *jsvm.ForStmt:
		body = s.Body
	case *jsvm.ForInStmt:
		body = s.Body
	}
	block, ok := body.(*jsvm.BlockStmt)
	if !ok {
		return
	}
	// A body that already opens with a guard (the output of an earlier
	// Sanitize pass) is left alone, so sanitizing twice equals once.
	if len(block.Body) > 0 {
		if guard, ok := block.Body[0].(*jsvm.IfStmt); ok {
			if cmp, ok := guard.Cond.(*jsvm.BinaryExpr); ok && cmp.Op == ">" {
				if diff, ok := cmp.X.(*jsvm.BinaryExpr); ok && diff.Op == "-" {
					if id, ok := diff.Y.(*jsvm.Ident); ok && strings.HasPrefix(id.Name, "__jsvm_start_") {
						return
					}
				}
			}
		}
	}
	scopeVar := w.scopeVar(entryPos)
	if block.Pos < 0 {
		if block.SynthEnd <= block.SynthStart {
			return
		}
		w.patches = append(w.patches, patch{pos: block.SynthEnd, text: " }"})
		w.patches = append(w.patches, patch{pos: block.SynthStart, text: "{ " + w.guardText(scopeVar)})
		return
	}
	w.patches = append(w.patches, patch{
		pos:  block.Pos + 1,
		text: " " + w.guardText(scopeVar),
	})
}
