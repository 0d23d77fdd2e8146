package jsvm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustRun(t *testing.T, src string, globals Globals) any {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	result, err := Run(prog, globals, Limits{Deadline: time.Now().Add(time.Second)})
	require.NoError(t, err)
	return result
}

func TestArithmeticAndVariables(t *testing.T) {
	result := mustRun(t, `
		let x = 2;
		let y = 3;
		x = x + y * 2;
		x;
	`, nil)
	require.Equal(t, 8.0, result)
}

func TestIfElseBranching(t *testing.T) {
	result := mustRun(t, `
		let health = 5;
		let status;
		if (health < 10) {
			status = "low";
		} else {
			status = "ok";
		}
		status;
	`, nil)
	require.Equal(t, "low", result)
}

func TestWhileLoopAccumulates(t *testing.T) {
	result := mustRun(t, `
		let total = 0;
		let i = 0;
		while (i < 5) {
			total = total + i;
			i = i + 1;
		}
		total;
	`, nil)
	require.Equal(t, 10.0, result)
}

func TestForOfIteratesArray(t *testing.T) {
	result := mustRun(t, `
		let items = [1, 2, 3];
		let sum = 0;
		for (let v of items) {
			sum += v;
		}
		sum;
	`, nil)
	require.Equal(t, 6.0, result)
}

func TestFunctionDeclarationAndCall(t *testing.T) {
	result := mustRun(t, `
		function double(n) {
			return n * 2;
		}
		double(21);
	`, nil)
	require.Equal(t, 42.0, result)
}

func TestBotGlobalInjection(t *testing.T) {
	bot := map[string]any{"health": 18.0}
	result := mustRun(t, `bot.health;`, Globals{"bot": bot})
	require.Equal(t, 18.0, result)
}

func TestArrayBuiltinMethods(t *testing.T) {
	result := mustRun(t, `
		let items = [3, 1, 2];
		let doubled = items.map(function(v) { return v * 2; });
		doubled.join(",");
	`, nil)
	require.Equal(t, "6,2,4", result)
}

func TestDeadlineExceededDuringLoop(t *testing.T) {
	prog, err := Parse(`
		let i = 0;
		while (true) {
			i = i + 1;
		}
	`)
	require.NoError(t, err)
	_, err = Run(prog, nil, Limits{Deadline: time.Now().Add(5 * time.Millisecond)})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestBreakAndContinue(t *testing.T) {
	result := mustRun(t, `
		let sum = 0;
		for (let i = 0; i < 10; i += 1) {
			if (i == 5) { break; }
			if (i % 2 == 0) { continue; }
			sum += i;
		}
		sum;
	`, nil)
	require.Equal(t, 4.0, result) // 1 + 3
}
