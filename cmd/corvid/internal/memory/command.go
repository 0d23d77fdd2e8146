// Package memory implements `corvid memory recall|clear`: MemoryBridge
// operations driven from the CLI against an ephemeral services instance.
package memory

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
	"github.com/corvidrun/corvid/pkg/gamefacade"
	membridge "github.com/corvidrun/corvid/pkg/memory"
	"github.com/corvidrun/corvid/pkg/services"
)

func NewMemoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage episodic memory",
	}
	cmd.AddCommand(newRecallCommand(), newClearCommand())
	return cmd
}

func newRecallCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recall <world-id> <query>",
		Short: "Recall facts for a world matching a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(func(mem memoryRecaller) error {
				result, err := mem.Recall(context.Background(), args[0], args[1], limit)
				if err != nil {
					return fmt.Errorf("error recalling memory: %w", err)
				}
				if len(result.Results) == 0 {
					fmt.Println("No matching facts.")
					return nil
				}
				for _, r := range result.Results {
					fmt.Printf("  %s\n", r)
				}
				if result.Fallback {
					fmt.Println("(served from local fallback store)")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of facts to return")
	return cmd
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <world-id>",
		Short: "Clear every stored fact for a world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(func(mem memoryRecaller) error {
				if err := mem.ClearWorld(context.Background(), args[0]); err != nil {
					return fmt.Errorf("error clearing memory: %w", err)
				}
				fmt.Printf("cleared memory for world %s\n", args[0])
				return nil
			})
		},
	}
}

// memoryRecaller is the subset of *memory.Bridge these commands need.
type memoryRecaller interface {
	Recall(ctx context.Context, worldID, query string, limit int) (RecallResult, error)
	ClearWorld(ctx context.Context, worldID string) error
}

// RecallResult mirrors memory.RecallResult's fields these commands read.
type RecallResult struct {
	Success  bool
	Results  []string
	Fallback bool
}

// bridgeAdapter narrows a *membridge.Bridge to memoryRecaller, converting
// membridge.RecallResult into this package's local result shape so the
// interface has no dependency on pkg/memory beyond this one call site.
type bridgeAdapter struct {
	bridge *membridge.Bridge
}

func (b bridgeAdapter) Recall(ctx context.Context, worldID, query string, limit int) (RecallResult, error) {
	res, err := b.bridge.Recall(ctx, worldID, query, limit)
	if err != nil {
		return RecallResult{}, err
	}
	return RecallResult{Success: res.Success, Results: res.Results, Fallback: res.Fallback}, nil
}

func (b bridgeAdapter) ClearWorld(ctx context.Context, worldID string) error {
	return b.bridge.ClearWorld(ctx, worldID)
}

func withMemory(fn func(memoryRecaller) error) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	bot := gamefacade.NewMockFacade(gamefacade.Snapshot{})
	svc, err := services.New(cfg, bot, services.DefaultPaths(internal.WorkspacePath()))
	if err != nil {
		return fmt.Errorf("error initializing services: %w", err)
	}
	defer svc.VectorStore.Close()
	return fn(bridgeAdapter{bridge: svc.Memory})
}
