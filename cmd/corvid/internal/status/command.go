// Package status implements `corvid status`: process health reporting
// (bus stats, stack depth, budget usage).
package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/services"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show corvid status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd()
		},
	}
	return cmd
}

func statusCmd() error {
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

	budget := svc.Brain.BudgetSnapshot()
	fmt.Printf("%s corvid status\n", internal.Logo)
	current := "none"
	if top := svc.Stack.Current(); top != nil {
		current = top.Name
	}
	fmt.Printf("  stack depth: %d (current: %s)\n", svc.Stack.Depth(), current)
	fmt.Printf("  bus stats: %v\n", svc.Bus.Stats())
	fmt.Printf("  brain budget: %d/%d this window\n", budget.Count, budget.Limit)
	fmt.Printf("  memory fallback count: %d\n", svc.Memory.Stats().Fallback)
	fmt.Printf("  skill catalog size: %d\n", len(svc.Skills.Catalog()))
	return nil
}
