package main

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidrun/corvid/cmd/corvid/internal"
)

func TestNewCorvidCommand(t *testing.T) {
	cmd := NewCorvidCommand()

	require.NotNil(t, cmd)

	short := fmt.Sprintf("%s corvid - autonomous virtual-world agent runtime", internal.Logo)

	assert.Equal(t, "corvid", cmd.Use)
	assert.Equal(t, short, cmd.Short)

	assert.True(t, cmd.HasSubCommands())
	assert.True(t, cmd.HasAvailableSubCommands())

	assert.False(t, cmd.HasFlags())

	assert.Nil(t, cmd.Run)
	assert.Nil(t, cmd.RunE)

	allowedCommands := []string{
		"agent",
		"memory",
		"onboard",
		"skill",
		"status",
		"version",
	}

	subcommands := cmd.Commands()
	assert.Len(t, subcommands, len(allowedCommands))

	for _, subcmd := range subcommands {
		found := slices.Contains(allowedCommands, subcmd.Name())
		assert.True(t, found, "unexpected subcommand %q", subcmd.Name())

		assert.False(t, subcmd.Hidden)
	}
}
