package safety

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/sandbox"
)

func newSandwich() *Sandwich {
	return New(sandbox.New(sandbox.SandwichTimeoutMS), gamefacade.NewMockFacade(gamefacade.Snapshot{}))
}

func TestReviewPassesCleanSkillWithoutTest(t *testing.T) {
	sw := newSandwich()
	v := sw.Review(Request{Code: `function mine() { return 1; }`})
	require.True(t, v.Valid)
	require.Equal(t, LayerPass, v.Static)
	require.Equal(t, LayerPass, v.Logical)
	require.Equal(t, LayerSkipped, v.Behavioral)
}

func TestReviewFailsStaticLayerOnForbiddenToken(t *testing.T) {
	sw := newSandwich()
	v := sw.Review(Request{Code: `require("fs");`})
	require.False(t, v.Valid)
	require.Equal(t, LayerFail, v.Static)
	require.Equal(t, LayerSkipped, v.Logical)
	require.Equal(t, LayerSkipped, v.Behavioral)
}

func TestReviewFailsLogicalLayerOnCrash(t *testing.T) {
	sw := newSandwich()
	v := sw.Review(Request{Code: `undefinedVariable.prop;`})
	require.False(t, v.Valid)
	require.Equal(t, LayerPass, v.Static)
	require.Equal(t, LayerFail, v.Logical)
}

func TestReviewRunsBehavioralLayerWhenTestSupplied(t *testing.T) {
	sw := newSandwich()
	v := sw.Review(Request{
		Code: `function addOne(n) { return n + 1; }`,
		Test: `if (addOne(2) != 3) { throw "bad"; }`,
	})
	require.True(t, v.Valid)
	require.Equal(t, LayerPass, v.Behavioral)
}

func TestReviewFailsBehavioralLayerOnTestAssertion(t *testing.T) {
	sw := newSandwich()
	v := sw.Review(Request{
		Code: `function addOne(n) { return n + 1; }`,
		Test: `if (addOne(2) != 4) { throw "mismatch"; }`,
	})
	require.False(t, v.Valid)
	require.Equal(t, LayerFail, v.Behavioral)
}
