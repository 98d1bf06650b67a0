package config

import "time"

// DefaultConfig returns the built-in configuration. User YAML is merged
// on top, so every field here is a working default.
func DefaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Shadow: ModelTierConfig{
				Model:       "gpt-4o-mini",
				BaseURL:     "https://api.openai.com/v1",
				APIKeyEnv:   "OPENAI_API_KEY",
				Temperature: 0.2,
				MaxTokens:   2048,
				RateLimit:   5,
			},
			Pro: ModelTierConfig{
				Model:       "gpt-4o",
				BaseURL:     "https://api.openai.com/v1",
				APIKeyEnv:   "OPENAI_API_KEY",
				Temperature: 0.2,
				MaxTokens:   8192,
				RateLimit:   2,
			},
		},
		Consensus: ConsensusConfig{
			PriorApprove:    0.70,
			AcceptThreshold: 0.95,
			RejectThreshold: 0.30,
			MaxIterations:   3,
		},
		Shadow: ShadowConfig{
			MinConfidence: 0.75,
			VoteTimeout:   60 * time.Second,
		},
		Healing: HealingConfig{
			MaxIterations: 3,
			TestCommand:   "go test ./...",
			WorkDir:       ".",
			Timeout:       10 * time.Minute,
		},
		Governance: GovernanceConfig{
			ApprovalTimeout:  5 * time.Minute,
			FailureThreshold: 3,
		},
		Checkpoint: CheckpointConfig{
			Backend:    BackendSQLite,
			SQLitePath: "data/council.db",
			RedisAddr:  "localhost:6379",
			LockTTL:    30 * time.Second,
		},
		Planning: PlanningConfig{
			KeywordFallback: true,
		},
		Hub: HubConfig{
			HistoryLimit: 1000,
		},
		Ledger: LedgerConfig{
			MaxStagnation: 3,
		},
		Agents: map[string]AgentConfig{},
	}
}
