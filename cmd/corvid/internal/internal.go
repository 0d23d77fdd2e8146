// Package internal holds shared helpers the corvid CLI's subcommand
// packages use to resolve the workspace root and load configuration.
package internal

import (
	"os"
	"path/filepath"

	"github.com/corvidrun/corvid/pkg/config"
)

const Logo = "🐦"

// WorkspacePath resolves the workspace root: $CORVID_WORKSPACE if set,
// else ~/.corvid.
func WorkspacePath() string {
	if dir := os.Getenv("CORVID_WORKSPACE"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".corvid")
}

// LoadConfig parses Config from the process environment.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}
