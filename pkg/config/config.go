// Package config loads and validates the council.yaml runtime
// configuration: model tiers, consensus limits, shadow deliberation,
// healing budget, governance rules, and the checkpoint backend.
package config

import "time"

// CheckpointBackend selects the checkpoint persistence implementation.
type CheckpointBackend string

const (
	BackendSQLite   CheckpointBackend = "sqlite"
	BackendRedis    CheckpointBackend = "redis"
	BackendPostgres CheckpointBackend = "postgres"
)

// IsValid checks if the backend is a supported value
func (b CheckpointBackend) IsValid() bool {
	return b == BackendSQLite || b == BackendRedis || b == BackendPostgres
}

// ModelTierConfig describes one model tier (shadow or pro).
type ModelTierConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
}

// ModelsConfig groups the two model tiers. Shadow runs the cheap
// concurrent voters; Pro runs escalated deliberation and coding.
type ModelsConfig struct {
	Shadow ModelTierConfig `yaml:"shadow"`
	Pro    ModelTierConfig `yaml:"pro"`
}

// ConsensusConfig holds the sequential test limits.
type ConsensusConfig struct {
	PriorApprove    float64 `yaml:"prior_approve"`
	AcceptThreshold float64 `yaml:"accept_threshold"`
	RejectThreshold float64 `yaml:"reject_threshold"`
	MaxIterations   int     `yaml:"max_iterations"`
}

// ShadowConfig holds shadow deliberation settings.
type ShadowConfig struct {
	MinConfidence float64       `yaml:"min_confidence"`
	VoteTimeout   time.Duration `yaml:"vote_timeout"`
}

// HealingConfig holds the self-healing loop settings.
type HealingConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	TestCommand   string        `yaml:"test_command"`
	WorkDir       string        `yaml:"work_dir"`
	Timeout       time.Duration `yaml:"timeout"`
}

// GovernanceConfig holds approval gateway settings.
type GovernanceConfig struct {
	ApprovalTimeout  time.Duration `yaml:"approval_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SensitivePaths   []string      `yaml:"sensitive_paths"`
}

// CheckpointConfig selects and parameterizes the persistence backend.
type CheckpointConfig struct {
	Backend       CheckpointBackend `yaml:"backend"`
	SQLitePath    string            `yaml:"sqlite_path"`
	RedisAddr     string            `yaml:"redis_addr"`
	RedisPassword string            `yaml:"redis_password"`
	RedisDB       int               `yaml:"redis_db"`
	RedisTTL      time.Duration     `yaml:"redis_ttl"`
	PostgresDSN   string            `yaml:"postgres_dsn"`
	LockTTL       time.Duration     `yaml:"lock_ttl"`
}

// PlanningConfig controls plan generation behavior.
type PlanningConfig struct {
	// KeywordFallback enables the heuristic planner when the LLM plan
	// call fails or returns unusable output.
	KeywordFallback bool `yaml:"keyword_fallback"`
}

// HubConfig bounds the event hub.
type HubConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// LedgerConfig bounds the progress ledger.
type LedgerConfig struct {
	MaxStagnation int `yaml:"max_stagnation"`
}

// AgentConfig describes one configured agent profile overlayed on the
// built-in roster.
type AgentConfig struct {
	SystemPrompt       string   `yaml:"system_prompt"`
	Tier               string   `yaml:"tier"` // "shadow" or "pro"
	Capabilities       []string `yaml:"capabilities"`
	AllowDelegation    bool     `yaml:"allow_delegation"`
	AllowedAgents      []string `yaml:"allowed_agents"`
	MaxDelegationDepth int      `yaml:"max_delegation_depth"`
}

// Config is the complete runtime configuration.
type Config struct {
	Models     ModelsConfig           `yaml:"models"`
	Consensus  ConsensusConfig        `yaml:"consensus"`
	Shadow     ShadowConfig           `yaml:"shadow"`
	Healing    HealingConfig          `yaml:"healing"`
	Governance GovernanceConfig       `yaml:"governance"`
	Checkpoint CheckpointConfig       `yaml:"checkpoint"`
	Planning   PlanningConfig         `yaml:"planning"`
	Hub        HubConfig              `yaml:"hub"`
	Ledger     LedgerConfig           `yaml:"ledger"`
	Agents     map[string]AgentConfig `yaml:"agents"`
}
