// council runs a development task through the multi-agent deliberation
// pipeline: plan, code, test, heal, and vote, with human escalation on
// risky or contested outcomes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/checkpoint"
	"github.com/council-runtime/council/pkg/config"
	"github.com/council-runtime/council/pkg/consensus"
	"github.com/council-runtime/council/pkg/events"
	"github.com/council-runtime/council/pkg/governance"
	"github.com/council-runtime/council/pkg/healing"
	"github.com/council-runtime/council/pkg/llm"
	"github.com/council-runtime/council/pkg/orchestrator"
	"github.com/council-runtime/council/pkg/registry"
	"github.com/council-runtime/council/pkg/version"
)

var (
	configPath string
	threadID   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "council",
	Short:         "Multi-agent deliberation and execution runtime",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file loaded", "error", err)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [task description]",
	Short: "Drive one task to a terminal status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd.Context(), strings.Join(args, " "))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to council.yaml (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	runCmd.Flags().StringVar(&threadID, "thread", "", "Checkpoint thread ID (empty generates one from the clock)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func runTask(ctx context.Context, task string) error {
	cfg, err := config.Initialize(ctx, configPath)
	if err != nil {
		return err
	}

	shadowClient := newTierClient(cfg.Models.Shadow)
	proClient := newTierClient(cfg.Models.Pro)

	roster := []struct {
		name  string
		build func(llm.Client, string) *agent.BaseAgent
		tier  string
		caps  []string
	}{
		{"architect", agent.NewArchitect, "pro", []string{agent.CapabilityPlanning, agent.CapabilityProReview}},
		{"coder", agent.NewCoder, "pro", []string{agent.CapabilityCoding}},
		{"reviewer", agent.NewReviewer, "pro", []string{agent.CapabilityReview, agent.CapabilityProReview}},
		{"security", agent.NewSecurityAuditor, "pro", []string{agent.CapabilitySecurity, agent.CapabilityProReview}},
		{"researcher", agent.NewResearcher, "shadow", []string{agent.CapabilityResearch}},
	}

	reg := registry.New()
	agents := make(map[string]*agent.BaseAgent, len(roster))
	for _, entry := range roster {
		tier := entry.tier
		ac, configured := cfg.Agents[entry.name]
		if configured && ac.Tier != "" {
			tier = ac.Tier
		}
		client, model := proClient, cfg.Models.Pro.Model
		if tier == "shadow" {
			client, model = shadowClient, cfg.Models.Shadow.Model
		}
		a := entry.build(client, model)
		caps := entry.caps
		if configured {
			a = overlayProfile(a, ac, client)
			if len(ac.Capabilities) > 0 {
				caps = ac.Capabilities
			}
		}
		agents[entry.name] = a
		if err := reg.Register(a, caps...); err != nil {
			return err
		}
	}
	architect, coder, reviewer := agents["architect"], agents["coder"], agents["reviewer"]

	wald, err := consensus.NewWald(consensus.WaldConfig{
		UpperLimit:   cfg.Consensus.AcceptThreshold,
		LowerLimit:   cfg.Consensus.RejectThreshold,
		PriorApprove: cfg.Consensus.PriorApprove,
	})
	if err != nil {
		return err
	}

	// The shadow tier mirrors the review roles on the cheap model.
	shadowAgents := []agent.Agent{
		agent.NewReviewer(shadowClient, cfg.Models.Shadow.Model),
		agent.NewSecurityAuditor(shadowClient, cfg.Models.Shadow.Model),
		agent.NewArchitect(shadowClient, cfg.Models.Shadow.Model),
	}
	proAgents := []agent.Agent{reviewer, architect, coder}
	shadow := consensus.NewShadowFacilitator(shadowAgents, proAgents, wald, consensus.ShadowConfig{
		MinConfidence: cfg.Shadow.MinConfidence,
		VoteTimeout:   cfg.Shadow.VoteTimeout,
	})

	hub := events.NewHubWithHistory(cfg.Hub.HistoryLimit)
	gateway := governance.NewGatewayWithConfig(governance.GatewayConfig{
		FailureThreshold: cfg.Governance.FailureThreshold,
		SensitivePaths:   cfg.Governance.SensitivePaths,
	})

	runner := healing.NewRunner(cfg.Healing.TestCommand, cfg.Healing.WorkDir)
	runner.Timeout = cfg.Healing.Timeout
	healer := healing.NewHealer(runner, &healing.CoderFixStrategy{Coder: coder}, hub, cfg.Healing.MaxIterations)

	store, err := newStore(ctx, cfg.Checkpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing checkpoint store", "error", err)
		}
	}()
	if err := store.Initialize(ctx); err != nil {
		return err
	}

	if threadID == "" {
		threadID = fmt.Sprintf("thread-%d", time.Now().UTC().Unix())
	}

	orch := orchestrator.New(reg, gateway, wald, shadow, healer, runner, hub, store, orchestrator.Options{
		ThreadID:        threadID,
		KeywordFallback: cfg.Planning.KeywordFallback,
		ApprovalTimeout: cfg.Governance.ApprovalTimeout,
		MaxStagnation:   cfg.Ledger.MaxStagnation,
	})

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var state *orchestrator.CouncilState
	var runErr error
	if rs, ok := store.(*checkpoint.RedisStore); ok {
		// Multi-process runs on a shared store serialize per thread.
		lock := checkpoint.NewRedisLock(rs.Client(), "council:lock:"+threadID, cfg.Checkpoint.LockTTL)
		runErr = lock.WithLock(runCtx, func(lctx context.Context) error {
			var err error
			state, err = orch.Run(lctx, task)
			return err
		})
		if state == nil {
			return runErr
		}
	} else {
		state, runErr = orch.Run(runCtx, task)
	}
	fmt.Printf("status: %s\n", state.Status)
	for _, line := range state.Log {
		fmt.Println(line)
	}
	if state.Status == orchestrator.StatusHumanRequired {
		for _, req := range gateway.PendingRequests() {
			fmt.Printf("pending approval %s: %s\n", req.RequestID, req.Description)
		}
	}
	return runErr
}

// overlayProfile rebuilds an agent with its configured overrides. The
// delegation policy comes wholesale from the config entry; an empty system
// prompt keeps the built-in one.
func overlayProfile(base *agent.BaseAgent, ac config.AgentConfig, client llm.Client) *agent.BaseAgent {
	p := base.Profile()
	if ac.SystemPrompt != "" {
		p.SystemPrompt = ac.SystemPrompt
	}
	p.AllowDelegation = ac.AllowDelegation
	p.AllowedAgents = append([]string(nil), ac.AllowedAgents...)
	if ac.MaxDelegationDepth > 0 {
		p.MaxDelegationDepth = ac.MaxDelegationDepth
	}
	return agent.New(p, client)
}

func newTierClient(tier config.ModelTierConfig) llm.Client {
	return llm.NewHTTPClient(llm.HTTPClientConfig{
		BaseURL:           tier.BaseURL,
		APIKey:            os.Getenv(tier.APIKeyEnv),
		Model:             tier.Model,
		RequestsPerSecond: tier.RateLimit,
	})
}

func newStore(ctx context.Context, cfg config.CheckpointConfig) (checkpoint.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return checkpoint.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	case config.BackendPostgres:
		return checkpoint.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return checkpoint.NewSQLiteStore(cfg.SQLitePath)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("council failed", "error", err)
		os.Exit(1)
	}
}
