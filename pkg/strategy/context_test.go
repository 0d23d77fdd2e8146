package strategy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/sandbox"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/skills"
)

type fakeWorld struct {
	deaths    int
	locations []string
}

func (f fakeWorld) DeathCount() int        { return f.deaths }
func (f fakeWorld) KnownLocations() []string { return f.locations }

func newTestBuilder(t *testing.T, budget int) (*Builder, *skills.Library) {
	t.Helper()
	bus := signalbus.New()
	lib, err := skills.New(t.TempDir(), bus, nil)
	require.NoError(t, err)
	bot := gamefacade.NewMockFacade(gamefacade.Snapshot{})
	reflexes := reflex.New(bus, sandbox.New(sandbox.DefaultTimeoutMS), bot)
	world := fakeWorld{deaths: 2, locations: []string{"base at 0,64,0"}}
	return New(lib, reflexes, world, budget), lib
}

func TestBuildIncludesStaticToolsAndMatchingSkill(t *testing.T) {
	b, lib := newTestBuilder(t, 2000)
	_, err := lib.Add("chop-tree", "function run(bot){}", "chops the nearest tree", []string{"wood"})
	require.NoError(t, err)

	bundle := b.Build("chop tree", gamefacade.Snapshot{Health: 20})
	require.Contains(t, bundle, "# Tools")
	require.Contains(t, bundle, "dig(block)")
	require.Contains(t, bundle, "chop-tree")
	require.Contains(t, bundle, "# Strategy")
}

func TestStressModeSuppressesMemorySection(t *testing.T) {
	b, _ := newTestBuilder(t, 2000)
	bundle := b.Build("anything", gamefacade.Snapshot{Health: 5})
	require.NotContains(t, bundle, "# Memory snapshot")
}

func TestNormalModeIncludesMemorySection(t *testing.T) {
	b, _ := newTestBuilder(t, 2000)
	bundle := b.Build("anything", gamefacade.Snapshot{Health: 20})
	require.Contains(t, bundle, "# Memory snapshot")
	require.Contains(t, bundle, "deaths: 2")
}

func TestBuildCachesUntilCatalogVersionChanges(t *testing.T) {
	b, lib := newTestBuilder(t, 2000)
	first := b.Build("anything", gamefacade.Snapshot{Health: 20})
	second := b.Build("anything", gamefacade.Snapshot{Health: 20})
	require.Equal(t, first, second)

	_, err := lib.Add("new-skill", "body", "a new skill", nil)
	require.NoError(t, err)
	third := b.Build("anything", gamefacade.Snapshot{Health: 20})
	require.NotEqual(t, first, third)
	require.Contains(t, third, "new-skill")
}

func TestSetStrategyReflectedInSection(t *testing.T) {
	b, _ := newTestBuilder(t, 2000)
	b.SetStrategy("build-shelter", "gather-wood")
	bundle := b.Build("anything", gamefacade.Snapshot{Health: 20})
	require.Contains(t, bundle, "active: build-shelter")
	require.Contains(t, bundle, "step: gather-wood")
}

func TestTruncationCutsToolsSectionFirst(t *testing.T) {
	tiny := 1
	b, lib := newTestBuilder(t, tiny)
	for i := 0; i < 5; i++ {
		_, err := lib.Add(strings.Repeat("a", i+1)+"-skill", "body", "a generated skill with a long description", nil)
		require.NoError(t, err)
	}
	bundle := b.Build("skill", gamefacade.Snapshot{Health: 20})
	require.Contains(t, bundle, "# Strategy")
}
