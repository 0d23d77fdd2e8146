// Package strategy implements StrategicContext: the context bundle
// assembled before every planning request. The mutex-guarded cache uses
// version-based invalidation: instead of stat'ing workspace file mtimes,
// it invalidates on SkillLibrary's catalog version and ReflexRegistry's
// generation counter, since there is no filesystem backing this bundle.
package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/skills"
)

// stressHealthThreshold is the bot.health value at or below which the
// bundle switches to its reduced, stress-mode shape.
const stressHealthThreshold = 10

// normalTopK/stressTopK bound how many dynamic skills are listed as
// tools under normal vs. stress conditions.
const (
	normalTopK = 10
	stressTopK = 3
)

// staticTools is the fixed primitive action list every bundle lists
// first, mirroring the capability surface pkg/gamefacade.GameFacade
// exposes.
var staticTools = []string{
	"dig(block)", "place(block, ref)", "look(yaw, pitch)", "equip(item, slot)",
	"chat(text)", "setControl(axis, on)", "pathfind(goal)",
}

// WorldSnapshotSource supplies the memory-snapshot section's death count
// and known-location list; suppressed entirely under stress.
type WorldSnapshotSource interface {
	DeathCount() int
	KnownLocations() []string
}

// Strategy is the currently active strategy id + step id, the second
// bundle section.
type Strategy struct {
	ID     string
	StepID string
}

// Builder assembles StrategicContext bundles.
type Builder struct {
	mu sync.RWMutex

	skillsLib *skills.Library
	reflexes  *reflex.Registry
	world     WorldSnapshotSource
	wordBudget int

	strategy Strategy

	cached        string
	cachedSkillsV uint64
	cachedReflexV uint64
	cachedStressV bool
	cachedQuery   string
	cachedK       int
}

// New builds a Builder with the given soft word budget (derived from the
// target model's context window by the caller).
func New(skillsLib *skills.Library, reflexes *reflex.Registry, world WorldSnapshotSource, wordBudget int) *Builder {
	if wordBudget <= 0 {
		wordBudget = 2000
	}
	return &Builder{skillsLib: skillsLib, reflexes: reflexes, world: world, wordBudget: wordBudget}
}

// SetStrategy records the active strategy/step id for the next Build.
func (b *Builder) SetStrategy(id, stepID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strategy = Strategy{ID: id, StepID: stepID}
}

// Build assembles the bundle for query under the given snapshot, using a
// cached result when neither the skill catalog, the reflex registry, nor
// the stress/query inputs that would reshape the bundle have changed
// since the last Build.
func (b *Builder) Build(query string, snapshot gamefacade.Snapshot) string {
	stress := snapshot.Health <= stressHealthThreshold
	skillsV := b.skillsLib.Version()
	reflexV := b.reflexes.Generation()

	b.mu.RLock()
	if b.cached != "" && b.cachedSkillsV == skillsV && b.cachedReflexV == reflexV &&
		b.cachedStressV == stress && b.cachedQuery == query {
		result := b.cached
		b.mu.RUnlock()
		return result
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	k := normalTopK
	if stress {
		k = stressTopK
	}

	sections := []string{
		b.buildToolsSection(query, k),
		b.buildStrategySection(),
		b.buildReflexesSection(),
	}
	if !stress && b.world != nil {
		sections = append(sections, b.buildMemorySection())
	}

	bundle := truncateToWordBudget(sections, b.wordBudget)

	b.cached = bundle
	b.cachedSkillsV = skillsV
	b.cachedReflexV = reflexV
	b.cachedStressV = stress
	b.cachedQuery = query
	return bundle
}

func (b *Builder) buildToolsSection(query string, k int) string {
	var lines []string
	lines = append(lines, "# Tools")
	for _, t := range staticTools {
		lines = append(lines, "- "+t)
	}

	ranked := rankSkillsByQuery(b.skillsLib.Catalog(), query, k)
	for _, s := range ranked {
		lines = append(lines, fmt.Sprintf("- %s: %s (success_count=%d)", s.Name, s.Description, s.Meta.SuccessCount))
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) buildStrategySection() string {
	return fmt.Sprintf("# Strategy\n- active: %s\n- step: %s", b.strategy.ID, b.strategy.StepID)
}

func (b *Builder) buildReflexesSection() string {
	var lines []string
	lines = append(lines, "# Reflexes")
	for _, dr := range b.reflexes.DynamicReflexes() {
		lines = append(lines, fmt.Sprintf("- %s (success=%d fail=%d)", dr.ID, dr.Stats.Success, dr.Stats.Fail))
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) buildMemorySection() string {
	var lines []string
	lines = append(lines, "# Memory snapshot")
	lines = append(lines, fmt.Sprintf("- deaths: %d", b.world.DeathCount()))
	for _, loc := range b.world.KnownLocations() {
		lines = append(lines, "- known location: "+loc)
	}
	return strings.Join(lines, "\n")
}

// rankSkillsByQuery scores catalog entries by the same whitespace-
// tokenized substring overlap pkg/skills.Search uses, returning the top
// k by score then success_count.
func rankSkillsByQuery(catalog []*skills.Skill, query string, k int) []*skills.Skill {
	terms := strings.Fields(strings.ToLower(query))

	type scored struct {
		skill *skills.Skill
		score int
	}
	var results []scored
	for _, s := range catalog {
		haystack := strings.ToLower(s.Name + " " + s.Description + " " + strings.Join(s.Tags, " "))
		score := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		results = append(results, scored{skill: s, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].skill.Meta.SuccessCount > results[j].skill.Meta.SuccessCount
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]*skills.Skill, 0, k)
	for _, r := range results[:k] {
		out = append(out, r.skill)
	}
	return out
}

// truncateToWordBudget joins sections with a fixed separator and, if the
// joined bundle exceeds budget words, truncates leaf sections first
// (tools, then memory, then reflexes) before ever touching the strategy
// section.
func truncateToWordBudget(sections []string, budget int) string {
	joined := strings.Join(sections, "\n\n---\n\n")
	if countWords(joined) <= budget {
		return joined
	}

	// Truncation priority: tools (index 0) is cut first, matching the
	// spec's explicit "tools list before strategy" example; memory and
	// reflexes follow; strategy (index 1) is preserved whole.
	order := []int{0, 3, 2}
	remaining := make([]string, len(sections))
	copy(remaining, sections)

	for _, idx := range order {
		if idx >= len(remaining) {
			continue
		}
		if countWords(strings.Join(remaining, "\n\n---\n\n")) <= budget {
			break
		}
		remaining[idx] = truncateWords(remaining[idx], 1)
	}
	return strings.Join(remaining, "\n\n---\n\n")
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func truncateWords(s string, keepLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= keepLines {
		return s
	}
	return strings.Join(lines[:keepLines], "\n")
}
