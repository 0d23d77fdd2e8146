package skills

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/pkg/signalbus"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	dir := t.TempDir()
	lib, err := New(dir, signalbus.New(), nil)
	require.NoError(t, err)
	return lib
}

func TestAddThenGetRoundTrips(t *testing.T) {
	lib := newTestLibrary(t)
	skill, err := lib.Add("chop-tree", `function run(bot) { bot.dig("log"); }`, "chops the nearest tree", []string{"gathering", "wood"})
	require.NoError(t, err)
	require.Equal(t, 1, skill.Meta.Version)

	got, ok := lib.Get("chop-tree")
	require.True(t, ok)
	require.Equal(t, "chops the nearest tree", got.Description)
	require.Contains(t, got.Body, "bot.dig")
}

func TestAddTwiceIncrementsVersionAndPreservesSuccessCount(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("mine-coal", "v1 body", "mines coal ore", nil)
	require.NoError(t, err)
	require.NoError(t, lib.MarkSuccess("mine-coal"))

	updated, err := lib.Add("mine-coal", "v2 body", "mines coal ore, improved", nil)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Meta.Version)
	require.Equal(t, 1, updated.Meta.SuccessCount)
}

func TestAddRejectsUnsafeName(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("../escape", "body", "desc", nil)
	require.Error(t, err)
}

func TestMarkFailureBlacklistsOnFatalClassification(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("broken", "body", "desc", nil)
	require.NoError(t, err)

	lib.MarkFailure("broken", "ReferenceError: bot is not defined")
	require.True(t, lib.IsBlacklisted("broken"))
	_, ok := lib.Get("broken")
	require.False(t, ok)
}

func TestMarkFailureBlacklistsAfterMaxRetries(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("flaky", "body", "desc", nil)
	require.NoError(t, err)

	lib.MarkFailure("flaky", "transient network error")
	lib.MarkFailure("flaky", "transient network error")
	require.False(t, lib.IsBlacklisted("flaky"))
	lib.MarkFailure("flaky", "transient network error")
	require.True(t, lib.IsBlacklisted("flaky"))
}

func TestSearchScoresAndBreaksTiesOnSuccessCount(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("chop-tree", "body", "chops wood from trees", []string{"wood"})
	require.NoError(t, err)
	_, err = lib.Add("gather-wood", "body", "gathers wood logs", []string{"wood", "gathering"})
	require.NoError(t, err)
	require.NoError(t, lib.MarkSuccess("gather-wood"))

	best, ok := lib.Search("wood")
	require.True(t, ok)
	require.Equal(t, "gather-wood", best.Name)
}

func TestSearchReturnsFalseWhenNothingScores(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("chop-tree", "body", "chops wood", nil)
	require.NoError(t, err)

	_, ok := lib.Search("nonexistent-term-xyz")
	require.False(t, ok)
}

func TestSummaryListsSkillsSorted(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Add("zeta", "body", "last alphabetically", nil)
	require.NoError(t, err)
	_, err = lib.Add("alpha", "body", "first alphabetically", nil)
	require.NoError(t, err)

	summary := lib.Summary()
	require.Contains(t, summary, "- alpha: first alphabetically (used 0x)")
	require.Less(t, indexOf(summary, "alpha"), indexOf(summary, "zeta"))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestHotSwapWritesToGeneratedDirAndMarksGenerated(t *testing.T) {
	lib := newTestLibrary(t)
	skill, err := lib.HotSwap("auto-fix", "body", "generated fix")
	require.NoError(t, err)
	require.True(t, skill.Generated())
	require.Contains(t, skill.Path, "generated")

	_, err = os.Stat(skill.Path)
	require.NoError(t, err)
}

func TestRestoreFromRewritesCacheAndDisk(t *testing.T) {
	lib := newTestLibrary(t)
	original, err := lib.Add("rollback-me", "original body", "desc", nil)
	require.NoError(t, err)
	rendered, err := renderSkillFile(original)
	require.NoError(t, err)

	_, err = lib.Add("rollback-me", "bad new body", "desc", nil)
	require.NoError(t, err)

	require.NoError(t, lib.RestoreFrom("rollback-me", rendered))
	got, ok := lib.Get("rollback-me")
	require.True(t, ok)
	require.Equal(t, "original body", got.Body)
}

func TestClearBlacklistAllowsReuse(t *testing.T) {
	lib := newTestLibrary(t)
	lib.MarkFailure("never-added", "ReferenceError: x is not defined")
	require.True(t, lib.IsBlacklisted("never-added"))
	lib.ClearBlacklist("never-added")
	require.False(t, lib.IsBlacklisted("never-added"))
}
