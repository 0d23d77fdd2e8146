// Package skills implements SkillLibrary: a persistent, file-locked store
// of named skills on disk plus an in-memory cache. Unlike a read-only,
// pre-authored skill directory, this library is a single writable
// directory that also accepts LLM-generated skills through add/hot_swap.
package skills

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/signalbus"
)

const MaxRetries = 3

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9]+(-[a-zA-Z0-9]+)*$`)

var (
	reDescription = regexp.MustCompile(`(?m)^// @description (.*)$`)
	reTags        = regexp.MustCompile(`(?m)^// @tags (.*)$`)
	reMetadata    = regexp.MustCompile(`(?m)^// @metadata (.*)$`)
)

// Metadata is the JSON object carried in a skill file's `@metadata`
// header line.
type Metadata struct {
	SuccessCount  int    `json:"success_count"`
	CreatedAt     int64  `json:"created_at"`
	LastOptimized *int64 `json:"last_optimized"`
	Version       int    `json:"version"`
	LastUsed      *int64 `json:"last_used,omitempty"`
	Generated     *bool  `json:"generated,omitempty"`
}

// Skill is the in-memory representation of one library entry.
type Skill struct {
	Name        string
	Body        string
	Description string
	Tags        []string
	Meta        Metadata
	Path        string
}

func (s Skill) Generated() bool {
	return s.Meta.Generated != nil && *s.Meta.Generated
}

// Optimizer is invoked asynchronously once a skill crosses the
// success-count/staleness threshold in mark_success; SkillLibrary
// schedules it, it never blocks the caller.
type Optimizer interface {
	Optimize(name string)
}

type blacklistEntry struct {
	failureCount  int
	firstFailure  time.Time
}

// Library is SkillLibrary: on-disk store plus in-memory cache, guarded
// by a single process-wide mutex standing in for an async file lock
// (disk and cache always move together under this lock, so
// "cache ≡ disk modulo in-flight operations" holds by construction).
type Library struct {
	mu sync.Mutex

	dir          string // library/
	generatedDir string // library/generated/
	backupsDir   string // backups/

	cache     map[string]*Skill
	blacklist map[string]*blacklistEntry
	failures  map[string]*blacklistEntry // non-fatal failure counts below MaxRetries; promoted into blacklist at the threshold

	bus       *signalbus.Bus
	optimizer Optimizer
	log       *logger.Logger
	onAdd     func(name, previousPath string, hadPrevious bool) error

	version uint64
}

// SetAddHook registers a callback invoked by Add after resolving the
// name's previous path (if any) but before the new content is written,
// so RollbackManager can snapshot the previous version while it still
// exists on disk. There is no import cycle here: the hook is a plain
// func value, so pkg/skills never imports pkg/rollback.
func (l *Library) SetAddHook(hook func(name, previousPath string, hadPrevious bool) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAdd = hook
}

// SetOptimizer registers the Optimizer invoked asynchronously once a
// skill crosses the success-count/staleness threshold. Set after
// construction since a real Optimizer (pkg/services' Brain-backed
// adapter) typically needs the Library itself to already exist.
func (l *Library) SetOptimizer(optimizer Optimizer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.optimizer = optimizer
}

// New loads every existing *.skill file under root into the cache and
// returns a ready Library. root gains library/, library/generated/, and
// backups/ subdirectories if they don't already exist.
func New(root string, bus *signalbus.Bus, optimizer Optimizer) (*Library, error) {
	lib := &Library{
		dir:          filepath.Join(root, "library"),
		generatedDir: filepath.Join(root, "library", "generated"),
		backupsDir:   filepath.Join(root, "backups"),
		cache:        make(map[string]*Skill),
		blacklist:    make(map[string]*blacklistEntry),
		failures:     make(map[string]*blacklistEntry),
		bus:          bus,
		optimizer:    optimizer,
		log:          logger.Default(),
	}
	for _, d := range []string{lib.dir, lib.generatedDir, lib.backupsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("skills: create %s: %w", d, err)
		}
	}
	if err := lib.loadAll(); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *Library) loadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("skills: read library dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".skill") {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			l.log.WarnCF("skills", "failed to read skill file", map[string]any{"path": path, "error": err.Error()})
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".skill")
		skill, err := parseSkillFile(name, path, string(content))
		if err != nil {
			l.log.WarnCF("skills", "failed to parse skill file", map[string]any{"path": path, "error": err.Error()})
			continue
		}
		l.cache[name] = skill
	}
	return nil
}

func skillPath(dir, name string) string {
	return filepath.Join(dir, name+".skill")
}

func renderSkillFile(s *Skill) (string, error) {
	metaJSON, err := json.Marshal(s.Meta)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "// @description %s\n", s.Description)
	fmt.Fprintf(&sb, "// @tags %s\n", strings.Join(s.Tags, ","))
	fmt.Fprintf(&sb, "// @metadata %s\n", string(metaJSON))
	sb.WriteString("\n")
	sb.WriteString(s.Body)
	return sb.String(), nil
}

func parseSkillFile(name, path, content string) (*Skill, error) {
	desc := firstMatch(reDescription, content)
	tagsLine := firstMatch(reTags, content)
	metaLine := firstMatch(reMetadata, content)

	var tags []string
	if tagsLine != "" {
		for _, t := range strings.Split(tagsLine, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
	}

	var meta Metadata
	if metaLine != "" {
		if err := json.Unmarshal([]byte(metaLine), &meta); err != nil {
			return nil, fmt.Errorf("invalid @metadata JSON: %w", err)
		}
	}

	body := stripHeader(content)

	return &Skill{
		Name:        name,
		Body:        body,
		Description: desc,
		Tags:        tags,
		Meta:        meta,
		Path:        path,
	}, nil
}

func firstMatch(re *regexp.Regexp, content string) string {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// stripHeader removes the leading `// @...` header lines and the blank
// line that follows them.
func stripHeader(content string) string {
	lines := strings.Split(content, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "// @") {
		i++
	}
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}

func validateName(name string) error {
	if name == "" {
		return errors.New("skills: name is required")
	}
	if !namePattern.MatchString(name) {
		return errors.New("skills: name must be a filesystem-safe identifier (alphanumeric, hyphen-separated)")
	}
	return nil
}

// Add writes library/<name>.skill. Version is prev+1 (or 1 if new);
// success_count, created_at, and last_optimized are preserved across
// updates. Before writing, Add calls the hook registered with
// SetAddHook with the previous path, so RollbackManager can copy the
// existing file to backups/<name>.bak first.
func (l *Library) Add(name, code, description string, tags []string) (*Skill, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UnixMilli()
	meta := Metadata{Version: 1, CreatedAt: now}
	var previousPath string
	hadPrevious := false
	if existing, ok := l.cache[name]; ok {
		meta.Version = existing.Meta.Version + 1
		meta.SuccessCount = existing.Meta.SuccessCount
		meta.CreatedAt = existing.Meta.CreatedAt
		meta.LastOptimized = existing.Meta.LastOptimized
		previousPath = existing.Path
		hadPrevious = true
	}

	skill := &Skill{
		Name:        name,
		Body:        code,
		Description: description,
		Tags:        tags,
		Meta:        meta,
		Path:        skillPath(l.dir, name),
	}

	if l.onAdd != nil {
		if err := l.onAdd(name, previousPath, hadPrevious); err != nil {
			return nil, fmt.Errorf("skills: add hook failed: %w", err)
		}
	}

	if err := l.persist(skill); err != nil {
		return nil, err
	}
	l.cache[name] = skill
	delete(l.blacklist, name)
	delete(l.failures, name)
	l.version++
	return skill, nil
}

// Version returns a monotonically increasing counter bumped on every
// mutation to the catalog (add/blacklist/hot-swap/restore), for
// StrategicContext's cache invalidation.
func (l *Library) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Catalog returns a snapshot of every non-blacklisted skill, sorted by
// name, for StrategicContext's tool-list assembly.
func (l *Library) Catalog() []*Skill {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Skill, 0, len(names))
	for _, name := range names {
		out = append(out, l.cache[name])
	}
	return out
}

func (l *Library) persist(s *Skill) error {
	rendered, err := renderSkillFile(s)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(rendered), 0o644)
}

// Get is a cache read; blacklisted skills are never returned.
func (l *Library) Get(name string) (*Skill, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, blocked := l.blacklist[name]; blocked {
		return nil, false
	}
	s, ok := l.cache[name]
	return s, ok
}

// MarkSuccess increments success_count, updates last_used, persists,
// and — if success_count crosses 10 with a stale or absent
// last_optimized — schedules (does not block on) optimization.
func (l *Library) MarkSuccess(name string) error {
	l.mu.Lock()
	skill, ok := l.cache[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("skills: unknown skill %q", name)
	}
	now := time.Now()
	nowMS := now.UnixMilli()
	skill.Meta.SuccessCount++
	skill.Meta.LastUsed = &nowMS

	shouldOptimize := false
	if skill.Meta.SuccessCount >= 10 {
		if skill.Meta.LastOptimized == nil {
			shouldOptimize = true
		} else {
			lastOpt := time.UnixMilli(*skill.Meta.LastOptimized)
			if now.Sub(lastOpt) > 7*24*time.Hour {
				shouldOptimize = true
			}
		}
	}
	err := l.persist(skill)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if shouldOptimize && l.optimizer != nil {
		go l.optimizer.Optimize(name)
	}
	return nil
}

// FatalErrorPattern matches mark_failure messages classified as fatal
// (ReferenceError, SyntaxError, TypeError, or textual "not defined" /
// "unexpected token"), which blacklist immediately regardless of retry
// count.
var fatalErrorPattern = regexp.MustCompile(`(?i)(ReferenceError|SyntaxError|TypeError|not defined|unexpected token)`)

// MarkFailure classifies error: fatal classifications blacklist
// immediately; otherwise a per-name failure count is incremented and
// the skill blacklists once it reaches MaxRetries. Either way,
// SkillFailed{name} is emitted.
func (l *Library) MarkFailure(name, errMsg string) {
	l.mu.Lock()
	fatal := fatalErrorPattern.MatchString(errMsg)

	if fatal {
		l.blacklistLocked(name)
	} else {
		entry, ok := l.failures[name]
		if !ok {
			entry = &blacklistEntry{firstFailure: time.Now()}
			l.failures[name] = entry
		}
		entry.failureCount++
		if entry.failureCount >= MaxRetries {
			l.blacklistLocked(name)
		}
	}
	l.version++
	l.mu.Unlock()

	if l.bus != nil {
		l.bus.Emit(signalbus.SkillFailed, map[string]any{"name": name, "error": errMsg})
	}
}

func (l *Library) blacklistLocked(name string) {
	if _, ok := l.blacklist[name]; !ok {
		l.blacklist[name] = &blacklistEntry{firstFailure: time.Now()}
	}
	l.blacklist[name].failureCount = MaxRetries
	delete(l.cache, name)
	delete(l.failures, name)
}

// IsBlacklisted reports whether name is currently blacklisted.
func (l *Library) IsBlacklisted(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.blacklist[name]
	return ok
}

// ClearBlacklist removes name from the blacklist (it does not restore
// the skill to the cache; re-adding it is the caller's job).
func (l *Library) ClearBlacklist(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.blacklist, name)
	delete(l.failures, name)
}

// searchResult pairs a skill with its query score for sorting.
type searchResult struct {
	skill *Skill
	score int
}

// Search scores each non-blacklisted skill by the count of whitespace-
// tokenized query terms occurring (case-insensitive substring) in
// name|description|tags, and returns the highest-scoring skill. Ties
// break toward higher success_count. Returns (nil, false) if no skill
// scores above zero.
func (l *Library) Search(query string) (*Skill, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, false
	}

	var results []searchResult
	for _, s := range l.cache {
		haystack := strings.ToLower(s.Name + " " + s.Description + " " + strings.Join(s.Tags, " "))
		score := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		if score > 0 {
			results = append(results, searchResult{skill: s, score: score})
		}
	}
	if len(results) == 0 {
		return nil, false
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].skill.Meta.SuccessCount > results[j].skill.Meta.SuccessCount
	})
	return results[0].skill, true
}

// Summary renders the newline-list "- name: description (used Nx)" for
// every non-blacklisted skill.
func (l *Library) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		s := l.cache[name]
		lines = append(lines, fmt.Sprintf("- %s: %s (used %dx)", s.Name, s.Description, s.Meta.SuccessCount))
	}
	return strings.Join(lines, "\n")
}

// HotSwap writes to library/generated/<name>.skill, marks the skill
// generated, and does not bump version history (always version 1
// relative to the generated directory's own lineage).
func (l *Library) HotSwap(name, code, description string) (*Skill, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	generated := true
	skill := &Skill{
		Name:        name,
		Body:        code,
		Description: description,
		Meta:        Metadata{Version: 1, CreatedAt: time.Now().UnixMilli(), Generated: &generated},
		Path:        skillPath(l.generatedDir, name),
	}
	if err := l.persist(skill); err != nil {
		return nil, err
	}
	l.cache[name] = skill
	l.version++
	return skill, nil
}

// BackupPath is the on-disk path RollbackManager restores from; it
// never guesses this layout itself.
func (l *Library) BackupPath(name string) string {
	return filepath.Join(l.backupsDir, name+".bak")
}

// PathFor resolves the live file path for name, for RollbackManager to
// back up before Add overwrites it. Returns ("", false) if name has
// never been added.
func (l *Library) PathFor(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.cache[name]
	if !ok {
		return "", false
	}
	return s.Path, true
}

// RestoreFrom overwrites name's live file and cache entry from
// backupContent, used by RollbackManager on an auto-rollback.
func (l *Library) RestoreFrom(name, backupContent string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := skillPath(l.dir, name)
	skill, err := parseSkillFile(name, path, backupContent)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(backupContent), 0o644); err != nil {
		return err
	}
	l.cache[name] = skill
	delete(l.blacklist, name)
	delete(l.failures, name)
	l.version++
	return nil
}
