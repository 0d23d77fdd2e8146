// Package config loads the runtime's environment-variable overrides: a
// plain struct decorated with `env` tags and parsed by caarlos0/env.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment override this runtime recognizes, including
// memory service auth and brain provider selection.
type Config struct {
	// MindserverPort overrides the mind-server port the external adapter
	// binds to.
	MindserverPort int `env:"MINDSERVER_PORT" envDefault:"8080"`

	// InsecureCoding disables CodeSandbox's static forbidden-token scan.
	// Debug only; never set in production.
	InsecureCoding bool `env:"INSECURE_CODING" envDefault:"false"`

	// BlockedActionsJSON is the raw JSON list of action names to refuse to
	// dispatch. Use BlockedActions() for the parsed form.
	BlockedActionsJSON string `env:"BLOCKED_ACTIONS" envDefault:"[]"`

	// MaxMessages and NumExamples cap planner context size.
	MaxMessages int `env:"MAX_MESSAGES" envDefault:"40"`
	NumExamples int `env:"NUM_EXAMPLES" envDefault:"3"`

	// LogAll enables verbose prompt logging.
	LogAll bool `env:"LOG_ALL" envDefault:"false"`

	// StrictSkillMetadata rejects malformed @metadata JSON instead of
	// warning and defaulting (Open Question #2 in DESIGN.md).
	StrictSkillMetadata bool `env:"STRICT_SKILL_METADATA" envDefault:"false"`

	// MemoryServiceURL is the base URL of the episodic memory service.
	MemoryServiceURL string `env:"MEMORY_SERVICE_URL" envDefault:"http://localhost:8765"`

	// MemoryServiceClientID/Secret enable OAuth2 client-credentials auth
	// to the memory service; when either is empty, MemoryServiceToken (a
	// static bearer token) is used instead, or no auth at all.
	MemoryServiceClientID     string `env:"MEMORY_SERVICE_CLIENT_ID"`
	MemoryServiceClientSecret string `env:"MEMORY_SERVICE_CLIENT_SECRET"`
	MemoryServiceTokenURL     string `env:"MEMORY_SERVICE_TOKEN_URL"`
	MemoryServiceToken        string `env:"MEMORY_SERVICE_TOKEN"`

	// BrainProvider selects the concrete Brain transport: "anthropic" or
	// "openai".
	BrainProvider string `env:"BRAIN_PROVIDER" envDefault:"anthropic"`
	BrainAPIKey   string `env:"BRAIN_API_KEY"`
	BrainModel    string `env:"BRAIN_MODEL"`
}

// Load parses Config from the current process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	return cfg, nil
}

// BlockedActions decodes BlockedActionsJSON into a string slice. A parse
// failure is treated as "no blocked actions" — blocking dispatch is a
// safety feature, not one whose misconfiguration should itself crash the
// process (Fatal-for-process is reserved for init-time directory/state
// corruption per §7).
func (c *Config) BlockedActions() []string {
	var out []string
	if err := json.Unmarshal([]byte(c.BlockedActionsJSON), &out); err != nil {
		return nil
	}
	return out
}

// IsActionBlocked reports whether the given action name is in the
// configured blocklist.
func (c *Config) IsActionBlocked(action string) bool {
	for _, a := range c.BlockedActions() {
		if a == action {
			return true
		}
	}
	return false
}
