// Package skill implements `corvid skill list|search|show|add|remove`:
// SkillLibrary CRUD from the CLI (a deps struct built once in
// PersistentPreRunE, subcommands closing over lazy accessors).
package skill

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
	"github.com/corvidrun/corvid/pkg/gamefacade"
	"github.com/corvidrun/corvid/pkg/signalbus"
	"github.com/corvidrun/corvid/pkg/skills"
)

type deps struct {
	lib *skills.Library
}

func NewSkillCommand() *cobra.Command {
	var d deps

	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Manage the skill library",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := skills.New(internal.WorkspacePath(), signalbus.New(), nil)
			if err != nil {
				return fmt.Errorf("error opening skill library: %w", err)
			}
			d.lib = lib
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	libFn := func() *skills.Library { return d.lib }

	cmd.AddCommand(
		newListCommand(libFn),
		newSearchCommand(libFn),
		newShowCommand(libFn),
		newAddCommand(libFn),
		newRemoveCommand(libFn),
	)
	return cmd
}

func newListCommand(libFn func() *skills.Library) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every skill in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := libFn().Catalog()
			if len(catalog) == 0 {
				fmt.Println("No skills in library.")
				return nil
			}
			for _, s := range catalog {
				fmt.Printf("  %s (v%d, success=%d) — %s\n", s.Name, s.Meta.Version, s.Meta.SuccessCount, s.Description)
			}
			return nil
		},
	}
}

func newSearchCommand(libFn func() *skills.Library) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog for a matching skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := libFn().Search(args[0])
			if !ok {
				fmt.Println("No matching skill found.")
				return nil
			}
			fmt.Printf("  %s — %s\n", s.Name, s.Description)
			return nil
		},
	}
}

func newShowCommand(libFn func() *skills.Library) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a skill's full body and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := libFn().Get(args[0])
			if !ok {
				return fmt.Errorf("no such skill: %s", args[0])
			}
			fmt.Printf("# %s (v%d)\n%s\n\n%s\n", s.Name, s.Meta.Version, s.Description, s.Body)
			return nil
		},
	}
}

func newAddCommand(libFn func() *skills.Library) *cobra.Command {
	var description string
	var tags []string

	cmd := &cobra.Command{
		Use:   "add <name> <path-to-body>",
		Short: "Add or update a skill from a source file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(args[1])
			if err != nil {
				return err
			}
			skill, err := libFn().Add(args[0], body, description, tags)
			if err != nil {
				return fmt.Errorf("error adding skill: %w", err)
			}
			fmt.Printf("added %s (v%d)\n", skill.Name, skill.Meta.Version)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Skill description")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "Comma-separated tags")
	return cmd
}

func newRemoveCommand(libFn func() *skills.Library) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Record a failure against a skill; it leaves the live catalog once blacklisted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libFn().MarkFailure(args[0], "removed via CLI")
			fmt.Printf("recorded failure for %s\n", args[0])
			return nil
		},
	}
}
