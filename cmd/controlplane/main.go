// Command controlplane wires the Workflow Engine, Quota Manager, Strategy
// Orchestrator, Circuit Breaker Registry, and Plugin Lifecycle Supervisor
// into a single process and exposes the policy eval-gate as a CLI check.
//
// # Configuration
//
// Environment variables (see internal/config for the full list):
//
//	OPENCODE_ROOT                            - durable-file root (default: "~/.opencode")
//	OPENCODE_REPLAY_SEED                      - deterministic strategy replay seed
//	OPENCODE_POLICY_EVAL_MIN_DELTA             - eval-gate minimum score delta
//	OPENCODE_POLICY_SIM_MIN_ACCEPTANCE_RATIO   - eval-gate minimum acceptance ratio
//	OPENCODE_POLICY_REVIEW_P95_SLO_HOURS       - review-queue p95 age SLO
//
// # Example
//
//	controlplane serve
//	controlplane policy-gate -score-delta 0.05 -acceptance-ratio 95
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/opencode-ai/controlplane/internal/config"
	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
	"github.com/opencode-ai/controlplane/pkg/circuitbreaker"
	"github.com/opencode-ai/controlplane/pkg/integration"
	"github.com/opencode-ai/controlplane/pkg/integration/policy"
	"github.com/opencode-ai/controlplane/pkg/plugin"
	"github.com/opencode-ai/controlplane/pkg/quota"
	"github.com/opencode-ai/controlplane/pkg/strategy"
	"github.com/opencode-ai/controlplane/pkg/workflow/engine"
	"github.com/opencode-ai/controlplane/pkg/workflow/store"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: controlplane <serve|policy-gate> [flags]")
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "policy-gate":
		os.Exit(runPolicyGate(os.Args[2:]))
	default:
		log.Fatalf("unknown subcommand %q", os.Args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
}

// gateResult is the structured stdout contract every CLI gate wrapper
// prints (§6 "User-visible failure behavior"): `{status, reason, details}`
// on stdout, exit 0 on pass and 1 on fail.
type gateResult struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

func runPolicyGate(args []string) int {
	fs := flag.NewFlagSet("policy-gate", flag.ExitOnError)
	scoreDelta := fs.Float64("score-delta", 0, "observed eval score delta")
	acceptanceRatio := fs.Float64("acceptance-ratio", 0, "observed simulation acceptance ratio percent")
	_ = fs.Parse(args)

	cfg, err := config.Load(os.Getenv("OPENCODE_CONFIG"))
	if err != nil {
		printGate(gateResult{Status: "fail", Reason: err.Error()})
		return 1
	}

	res := policy.EvaluateGate(*scoreDelta, *acceptanceRatio, cfg.PolicyEvalMinDelta, cfg.PolicySimMinAcceptanceRatio)
	if !res.Pass {
		printGate(gateResult{Status: "fail", Reason: fmt.Sprintf("%v", res.Reasons), Details: res})
		return 1
	}
	printGate(gateResult{Status: "pass", Details: res})
	return 0
}

func printGate(r gateResult) {
	data, _ := json.Marshal(r)
	fmt.Println(string(data))
}

// runServe boots the full control plane in a single process: durable
// workflow store, quota accounting, strategy orchestration, circuit
// breakers, plugin supervision, and the Integration layer coordinator
// tying them together (§2 Composition). It is the teacher-style concrete
// default driver the rest of this module is a library for.
func runServe(args []string) error {
	cfg, err := config.Load(os.Getenv("OPENCODE_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root := expandRoot(cfg.Root)
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer zapLogger.Sync()
	logger := telemetry.NewZapLogger(zapLogger)
	bus := hooks.NewBus(nil)

	st, err := store.Open(filepath.Join(root, "workflow.db"))
	if err != nil {
		return fmt.Errorf("open workflow store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st, bus, logger)
	_ = eng // handlers are registered by the embedding application; this
	// binary only demonstrates wiring.

	qm := quota.NewManager(filepath.Join(root, "rate-limits.json"), bus, logger, nil)
	if err := qm.Load(); err != nil {
		return fmt.Errorf("load quota state: %w", err)
	}
	qm.SetSQLSink(st)

	health := strategy.NewHealthTracker(filepath.Join(root, "strategy-health.json"), cfg.Strategy.FailureThreshold,
		time.Duration(cfg.Strategy.CooldownMillis)*time.Millisecond, nil)
	if err := health.Load(); err != nil {
		return fmt.Errorf("load strategy health: %w", err)
	}
	reg := strategy.NewRegistry()
	var orchOpts []strategy.Option
	if cfg.Deterministic() {
		orchOpts = append(orchOpts, strategy.WithReplaySeed(cfg.ReplaySeed))
	}
	orch := strategy.NewOrchestrator(reg, health, bus, logger, orchOpts...)

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
	}, bus, logger)

	sup := plugin.NewSupervisor(filepath.Join(root, "plugin-runtime-state.json"), cfg.Plugin.QuarantineThreshold, bus, logger, nil)
	if err := sup.Load(); err != nil {
		return fmt.Errorf("load plugin state: %w", err)
	}

	learning := integration.NewLearningChannel(filepath.Join(root, "skill-rl.json"))
	if err := learning.Load(); err != nil {
		return fmt.Errorf("load learning channel: %w", err)
	}
	evidence := integration.NewEvidenceWriter(filepath.Join(root, "evidence"))

	coord := integration.NewCoordinator(qm, orch, breakers, learning, evidence, bus, logger)
	_ = coord

	logger.Info(context.Background(), "control plane started", "root", root)
	select {}
}

func expandRoot(root string) string {
	if len(root) >= 2 && root[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, root[2:])
		}
	}
	return root
}
