// Package agent implements `corvid agent run`: wires every component in
// pkg/services.AgentServices into a running reactive core, a long-lived
// RunE that builds services once and blocks on a cancellable context
// until interrupted.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/gamefacade/wsadapter"
	"github.com/corvidrun/corvid/pkg/reflex"
	"github.com/corvidrun/corvid/pkg/services"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/statestack"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run or inspect the reactive core",
	}
	cmd.AddCommand(newRunCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	var gameURL string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the reactive core and block until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), gameURL)
		},
	}
	cmd.Flags().StringVar(&gameURL, "game-url", "", "WebSocket URL of the external game-client adapter; a mock bot is used if empty")
	return cmd
}

func run(ctx context.Context, gameURL string) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bot gamefacade.GameFacade
	var adapter *wsadapter.Adapter

	if gameURL == "" {
		bot = gamefacade.NewMockFacade(gamefacade.Snapshot{Health: 20, Food: 20})
	} else {
		a, dialErr := wsadapter.Dial(gameURL, nil)
		if dialErr != nil {
			return fmt.Errorf("error dialing game client at %s: %w", gameURL, dialErr)
		}
		adapter = a
		bot = a
	}

	svc, err := services.New(cfg, bot, services.DefaultPaths(internal.WorkspacePath()))
	if err != nil {
		return fmt.Errorf("error initializing services: %w", err)
	}
	defer svc.VectorStore.Close()

	if adapter != nil {
		adapter.SetBus(svc.Bus)
		defer adapter.Close()
		go adapter.ReadLoop(ctx)
	}

	registerDefaultReflexes(svc.Reflexes, svc.Stack)

	svc.Log.InfoCF("agent", "reactive core starting", map[string]any{"game_url": gameURL})

	svc.Prompter.Start("begin autonomous activity")
	defer svc.Prompter.Stop()

	go svc.Scheduler.Run(ctx)
	go pruneLoop(ctx, svc.Reflexes)

	<-ctx.Done()
	svc.Scheduler.StopAll()
	svc.Log.InfoCF("agent", "reactive core stopped", nil)
	return nil
}

// registerDefaultReflexes wires the built-in threat-preemption behavior:
// any ThreatDetected signal interrupts whatever is running with a Combat
// state, and HealthCritical with a Survival state. These are the only
// native reflexes this runtime bakes in; everything else arrives as a
// dynamic reflex registered at runtime.
func registerDefaultReflexes(registry *reflex.Registry, stack *statestack.Stack) {
	registry.RegisterStatic(signalbus.ThreatDetected, nil, func(sig signalbus.Signal) {
		stack.Interrupt("Combat", statestack.PriorityCombat, sig.Payload)
	})
	registry.RegisterStatic(signalbus.HealthCritical, nil, func(sig signalbus.Signal) {
		stack.Interrupt("Survival", statestack.PrioritySurvival, sig.Payload)
	})
}

func pruneLoop(ctx context.Context, registry *reflex.Registry) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			registry.PruneExpiredTransients()
		}
	}
}
