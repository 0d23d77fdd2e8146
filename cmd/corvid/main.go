package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
	"github.com/corvidrun/corvid/cmd/corvid/internal/agent"
	"github.com/corvidrun/corvid/cmd/corvid/internal/memory"
	"github.com/corvidrun/corvid/cmd/corvid/internal/onboard"
	"github.com/corvidrun/corvid/cmd/corvid/internal/skill"
	"github.com/corvidrun/corvid/cmd/corvid/internal/status"
	"github.com/corvidrun/corvid/cmd/corvid/internal/version"
)

func NewCorvidCommand() *cobra.Command {
	short := fmt.Sprintf("%s corvid - autonomous virtual-world agent runtime", internal.Logo)

	cmd := &cobra.Command{
		Use:     "corvid",
		Short:   short,
		Example: "corvid onboard && corvid agent run",
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		agent.NewAgentCommand(),
		status.NewStatusCommand(),
		skill.NewSkillCommand(),
		memory.NewMemoryCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewCorvidCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
