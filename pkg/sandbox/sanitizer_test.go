package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/sandbox/jsvm"
)

func TestSanitizeInjectsGuardIntoWhileLoop(t *testing.T) {
	src := `
		let i = 0;
		while (i < 10) {
			i = i + 1;
		}
	`
	out := Sanitize(src, 5000)
	require.Contains(t, out, "Date.now()")
	require.Contains(t, out, "Timeout after 5000 ms")

	// sanitized source must still parse.
	_, err := jsvm.Parse(out)
	require.NoError(t, err)
}

func TestSanitizeLeavesUnparseableSourceUnchanged(t *testing.T) {
	src := "let x = ("
	out := Sanitize(src, 5000)
	require.Equal(t, src, out)
}

func TestSanitizeIsNoOpWithoutLoops(t *testing.T) {
	src := `let x = 1 + 2;`
	out := Sanitize(src, 5000)
	require.False(t, strings.Contains(out, "Date.now()"), "no loop should mean no guard injected")
}

func TestSanitizeWrapsBraceLessLoopBody(t *testing.T) {
	src := `
		let i = 0;
		while (i < 10) i = i + 1;
	`
	out := Sanitize(src, 5000)
	require.Contains(t, out, "Date.now()")
	require.Contains(t, out, "Timeout after 5000 ms")

	_, err := jsvm.Parse(out)
	require.NoError(t, err)

	// sanitizing the already-sanitized output must not inject a second
	// guard: a loop body that already opens with a guard is recognized.
	twice := Sanitize(out, 5000)
	require.Equal(t, out, twice)
}

func TestSanitizeDoesNotRewriteNonLoopNodes(t *testing.T) {
	src := `
		function f(n) {
			if (n > 0) {
				return n;
			}
			return 0;
		}
	`
	out := Sanitize(src, 5000)
	require.Equal(t, src, out, "no loops present, function body must be untouched")
}
