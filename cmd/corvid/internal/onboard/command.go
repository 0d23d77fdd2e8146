// Package onboard implements `corvid onboard`: first-run initialization
// of the on-disk workspace layout (library/ and library/generated/ for
// skills, backups/ for rollback snapshots, memory/, cron/). No config
// file is written.
package onboard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
)

func NewOnboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onboard",
		Aliases: []string{"o"},
		Short:   "Initialize corvid's workspace layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard(internal.WorkspacePath())
		},
	}
	return cmd
}

func onboard(root string) error {
	dirs := []string{
		filepath.Join(root, "library"),
		filepath.Join(root, "library", "generated"),
		filepath.Join(root, "backups"),
		filepath.Join(root, "memory"),
		filepath.Join(root, "cron"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("onboard: create %s: %w", d, err)
		}
	}

	// reflex_state.json is intentionally left absent here: its presence
	// means "recovering from an unclean shutdown"; a fresh workspace has
	// nothing to recover from.

	fmt.Printf("%s workspace initialized at %s\n", internal.Logo, root)
	return nil
}
