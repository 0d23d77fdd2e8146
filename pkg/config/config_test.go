package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.MindserverPort)
	require.False(t, cfg.InsecureCoding)
	require.Empty(t, cfg.BlockedActions())
}

func TestBlockedActions(t *testing.T) {
	cfg := &Config{BlockedActionsJSON: `["attack","dig_bedrock"]`}
	require.True(t, cfg.IsActionBlocked("attack"))
	require.False(t, cfg.IsActionBlocked("chat"))
}

func TestBlockedActionsMalformedJSONIsEmpty(t *testing.T) {
	cfg := &Config{BlockedActionsJSON: `not json`}
	require.Empty(t, cfg.BlockedActions())
	require.False(t, cfg.IsActionBlocked("anything"))
}
