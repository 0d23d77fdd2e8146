// Package services implements AgentServices: the otherwise cyclic
// agent/reflexes/scheduler/brain dependency graph is resolved here as a
// flat registry every component constructor receives explicitly,
// borrowing the handles it needs rather than owning its neighbors. The
// SignalBus remains the decoupling backbone; no component holds a
// mutable reference to another beyond what its own constructor signature
// requires.
package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/corvidrun/corvid/pkg/brain"
	"github.com/corvidrun/corvid/pkg/brain/anthropictransport"
	"github.com/corvidrun/corvid/pkg/brain/openaitransport"
	"github.com/corvidrun/corvid/pkg/config"
	"github.com/corvidrun/corvid/pkg/cron"
	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/logger"
	"github.com/corvidrun/corvid/pkg/memory"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/rollback"
	"github.com/corvidrun/corvid/pkg/safety"
	"github.com/corvidrun/corvid/pkg/sandbox"
	"github.com/corvidrun/corvid/pkg/scheduler"
	"github.com/corvidrun/corvid/pkg/selfprompter"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/skills"
	"github.com/corvidrun/corvid/pkg/statestack"
	"github.com/corvidrun/corvid/pkg/strategy"
	"github.com/corvidrun/corvid/pkg/vectorstore"
)

// Paths collects the on-disk workspace layout, rooted under a single
// workspace directory. Root is handed to skills.New directly, which
// creates its own library/ and backups/ subdirectories.
type Paths struct {
	Root   string // workspace root; library/ and backups/ live directly under it
	Memory string // memory/ (local vectorstore.db lives here)
	Cron   string // cron/jobs.json
}

// DefaultPaths derives the standard layout from a workspace root.
func DefaultPaths(root string) Paths {
	return Paths{
		Root:   root,
		Memory: root + "/memory",
		Cron:   root + "/cron",
	}
}

// AgentServices is the fully wired runtime: every component that needs
// another borrows it from here rather than constructing or owning it
// directly.
type AgentServices struct {
	Config *config.Config
	Log    *logger.Logger

	Bus   *signalbus.Bus
	Stack *statestack.Stack

	Bot gamefacade.GameFacade

	Sandbox  *sandbox.Sandbox
	Sandwich *safety.Sandwich

	Reflexes *reflex.Registry

	Skills   *skills.Library
	Rollback *rollback.Manager

	VectorStore *vectorstore.Store
	Memory      *memory.Bridge

	Strategy  *strategy.Builder
	Scheduler *scheduler.Scheduler
	Brain     *brain.Brain
	Prompter  *selfprompter.Prompter

	Cron *cron.Service
}

// worldSnapshotAdapter adapts a gamefacade.GameFacade into the death
// count / known location pair strategy.WorldSnapshotSource wants;
// neither figure is tracked by GameFacade itself; a production build
// wires this to whatever tracks deaths (the StateStack's Death signal
// count) and the memory bridge's known-location recall. A zero-value
// adapter always reports "nothing known" rather than guessing.
type worldSnapshotAdapter struct {
	deaths    *int
	locations *[]string
}

func (w worldSnapshotAdapter) DeathCount() int {
	if w.deaths == nil {
		return 0
	}
	return *w.deaths
}

func (w worldSnapshotAdapter) KnownLocations() []string {
	if w.locations == nil {
		return nil
	}
	return *w.locations
}

// optimizerAdapter implements skills.Optimizer by asking Brain to
// rewrite a stale skill's body and hot-swapping the result in, wiring
// the Optimizer trigger (which must never block the caller; SkillLibrary
// already invokes it via `go`) to a concrete synthesis path instead of a
// no-op.
type optimizerAdapter struct {
	brain  *brain.Brain
	skills *skills.Library
	log    *logger.Logger
}

func (o *optimizerAdapter) Optimize(name string) {
	skill, ok := o.skills.Get(name)
	if !ok {
		return
	}
	prompt := fmt.Sprintf("Rewrite the following skill body to be more reliable, keeping its signature and behavior:\n\n%s", skill.Body)
	code, err := o.brain.Code(context.Background(), "", prompt)
	if err != nil {
		o.log.WarnCF("services", "optimizer synthesis failed", map[string]any{"name": name, "error": err.Error()})
		return
	}
	if _, err := o.skills.HotSwap(name, code, skill.Description); err != nil {
		o.log.WarnCF("services", "optimizer hot-swap failed", map[string]any{"name": name, "error": err.Error()})
	}
}

// New wires every component in dependency order: SignalBus and
// StateStack first (nothing depends on them existing later), then the
// sandbox/safety pipeline, then SkillLibrary (whose Optimizer needs
// Brain, created after), then the planner-facing components, finally
// the Scheduler and SelfPrompter that drive everything else.
func New(cfg *config.Config, bot gamefacade.GameFacade, paths Paths) (*AgentServices, error) {
	log := logger.Default()
	bus := signalbus.New(signalbus.WithLogger(log))
	stack := statestack.New(bus)

	sb := sandbox.New(sandbox.DefaultTimeoutMS)
	sandwich := safety.New(sb, bot)

	if err := os.MkdirAll(paths.Memory, 0o755); err != nil {
		return nil, fmt.Errorf("services: create memory dir: %w", err)
	}
	vstore, err := vectorstore.Open(paths.Memory + "/local.db")
	if err != nil {
		return nil, fmt.Errorf("services: open local vector store: %w", err)
	}

	var memOpts []memory.Option
	switch {
	case cfg.MemoryServiceClientID != "" && cfg.MemoryServiceClientSecret != "":
		memOpts = append(memOpts, memory.WithOAuth2ClientCredentials(cfg.MemoryServiceClientID, cfg.MemoryServiceClientSecret, cfg.MemoryServiceTokenURL))
	case cfg.MemoryServiceToken != "":
		memOpts = append(memOpts, memory.WithBearerToken(cfg.MemoryServiceToken))
	}
	memBridge := memory.New(cfg.MemoryServiceURL, vstore, memOpts...)

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	s := &AgentServices{
		Config:      cfg,
		Log:         log,
		Bus:         bus,
		Stack:       stack,
		Bot:         bot,
		Sandbox:     sb,
		Sandwich:    sandwich,
		VectorStore: vstore,
		Memory:      memBridge,
	}

	skillsLib, err := skills.New(paths.Root, bus, nil)
	if err != nil {
		return nil, fmt.Errorf("services: open skill library: %w", err)
	}
	s.Skills = skillsLib

	rollbackMgr := rollback.New(bus, skillsLib)
	s.Rollback = rollbackMgr
	skillsLib.SetAddHook(func(name, previousPath string, hadPrevious bool) error {
		return rollbackMgr.OnAdd(name)
	})

	reflexes := reflex.New(bus, sb, bot)
	s.Reflexes = reflexes

	snapshotSource := worldSnapshotAdapter{}
	strategyBuilder := strategy.New(skillsLib, reflexes, snapshotSource, 2000)
	s.Strategy = strategyBuilder

	b := brain.New(transport, strategyBuilder, memBridge, skillsLib, 200, 12*time.Hour)
	s.Brain = b

	opt := &optimizerAdapter{brain: b, skills: skillsLib, log: log}
	skillsLib.SetOptimizer(opt)

	sched := scheduler.New(stack, bus, scheduler.DefaultTick)
	s.Scheduler = sched

	prompter := selfprompter.New(func(ctx context.Context, message string) (string, error) {
		return b.Chat(ctx, message)
	}, func(message string) {
		log.InfoCF("selfprompter", message, nil)
	})
	s.Prompter = prompter

	s.Cron = cron.NewCronService(paths.Cron+"/jobs.json", nil)

	return s, nil
}

func newTransport(cfg *config.Config) (brain.Transport, error) {
	switch cfg.BrainProvider {
	case "openai":
		var opts []openaitransport.Option
		if cfg.BrainModel != "" {
			opts = append(opts, openaitransport.WithModel(cfg.BrainModel))
		}
		return openaitransport.New(cfg.BrainAPIKey, opts...), nil
	case "anthropic", "":
		var opts []anthropictransport.Option
		if cfg.BrainModel != "" {
			opts = append(opts, anthropictransport.WithModel(cfg.BrainModel))
		}
		return anthropictransport.New(cfg.BrainAPIKey, opts...), nil
	default:
		return nil, fmt.Errorf("services: unknown brain provider %q", cfg.BrainProvider)
	}
}
