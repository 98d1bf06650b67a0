package config

import "fmt"

// Validate performs comprehensive validation on loaded configuration.
func Validate(cfg *Config) error {
	if err := validateModels(&cfg.Models); err != nil {
		return err
	}
	if err := validateConsensus(&cfg.Consensus); err != nil {
		return err
	}
	if err := validateShadow(&cfg.Shadow); err != nil {
		return err
	}
	if err := validateHealing(&cfg.Healing); err != nil {
		return err
	}
	if err := validateCheckpoint(&cfg.Checkpoint); err != nil {
		return err
	}
	if err := validateAgents(cfg.Agents); err != nil {
		return err
	}
	return nil
}

func validateModels(m *ModelsConfig) error {
	for name, tier := range map[string]ModelTierConfig{"shadow": m.Shadow, "pro": m.Pro} {
		if tier.Model == "" {
			return NewValidationError("models."+name, "model", ErrMissingRequiredField)
		}
		if tier.BaseURL == "" {
			return NewValidationError("models."+name, "base_url", ErrMissingRequiredField)
		}
		if tier.Temperature < 0 || tier.Temperature > 2 {
			return NewValidationError("models."+name, "temperature",
				fmt.Errorf("%w: %v not in [0, 2]", ErrInvalidValue, tier.Temperature))
		}
	}
	return nil
}

func validateConsensus(c *ConsensusConfig) error {
	if c.PriorApprove <= 0 || c.PriorApprove >= 1 {
		return NewValidationError("consensus", "prior_approve",
			fmt.Errorf("%w: %v not in (0, 1)", ErrInvalidValue, c.PriorApprove))
	}
	if c.AcceptThreshold <= 0 || c.AcceptThreshold >= 1 {
		return NewValidationError("consensus", "accept_threshold",
			fmt.Errorf("%w: %v not in (0, 1)", ErrInvalidValue, c.AcceptThreshold))
	}
	if c.RejectThreshold <= 0 || c.RejectThreshold >= 1 {
		return NewValidationError("consensus", "reject_threshold",
			fmt.Errorf("%w: %v not in (0, 1)", ErrInvalidValue, c.RejectThreshold))
	}
	if c.RejectThreshold >= c.AcceptThreshold {
		return NewValidationError("consensus", "reject_threshold",
			fmt.Errorf("%w: reject %v must be below accept %v", ErrInvalidValue, c.RejectThreshold, c.AcceptThreshold))
	}
	if c.MaxIterations < 1 {
		return NewValidationError("consensus", "max_iterations",
			fmt.Errorf("%w: %d must be at least 1", ErrInvalidValue, c.MaxIterations))
	}
	return nil
}

func validateShadow(s *ShadowConfig) error {
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return NewValidationError("shadow", "min_confidence",
			fmt.Errorf("%w: %v not in [0, 1]", ErrInvalidValue, s.MinConfidence))
	}
	if s.VoteTimeout <= 0 {
		return NewValidationError("shadow", "vote_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateHealing(h *HealingConfig) error {
	if h.MaxIterations < 1 {
		return NewValidationError("healing", "max_iterations",
			fmt.Errorf("%w: %d must be at least 1", ErrInvalidValue, h.MaxIterations))
	}
	if h.TestCommand == "" {
		return NewValidationError("healing", "test_command", ErrMissingRequiredField)
	}
	return nil
}

func validateCheckpoint(c *CheckpointConfig) error {
	if !c.Backend.IsValid() {
		return NewValidationError("checkpoint", "backend",
			fmt.Errorf("%w: %q (must be sqlite, redis, or postgres)", ErrInvalidValue, c.Backend))
	}
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return NewValidationError("checkpoint", "sqlite_path", ErrMissingRequiredField)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return NewValidationError("checkpoint", "redis_addr", ErrMissingRequiredField)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return NewValidationError("checkpoint", "postgres_dsn", ErrMissingRequiredField)
		}
	}
	return nil
}

func validateAgents(agents map[string]AgentConfig) error {
	for name, a := range agents {
		if a.Tier != "" && a.Tier != "shadow" && a.Tier != "pro" {
			return NewValidationError("agents."+name, "tier",
				fmt.Errorf("%w: %q (must be shadow or pro)", ErrInvalidValue, a.Tier))
		}
		if a.MaxDelegationDepth < 0 {
			return NewValidationError("agents."+name, "max_delegation_depth",
				fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
		for _, allowed := range a.AllowedAgents {
			if allowed == name {
				return NewValidationError("agents."+name, "allowed_agents",
					fmt.Errorf("%w: agent cannot delegate to itself", ErrInvalidValue))
			}
		}
	}
	return nil
}
