// Package config loads the control plane's runtime configuration once from
// the environment (and an optional YAML overlay) into a frozen value.
// Components never call os.Getenv directly; they take a *Config or the
// sub-values they need at construction time.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the frozen, process-wide configuration snapshot. It is loaded
// once via Load and passed by value (or pointer) to components; nothing
// mutates it after Load returns.
type Config struct {
	// Root overrides root directory resolution for durable files
	// (OPENCODE_ROOT). Defaults to "~/.opencode".
	Root string

	// ReplaySeed enables deterministic strategy orchestration when non-empty
	// (OPENCODE_REPLAY_SEED).
	ReplaySeed string

	// PolicyEvalMinDelta is the minimum score delta required to pass the
	// eval gate (OPENCODE_POLICY_EVAL_MIN_DELTA, default 0).
	PolicyEvalMinDelta float64

	// PolicySimMinAcceptanceRatio is the minimum simulation acceptance ratio
	// percent (OPENCODE_POLICY_SIM_MIN_ACCEPTANCE_RATIO, default 90).
	PolicySimMinAcceptanceRatio float64

	// PolicyReviewP95SLOHours is the p95 queue-age SLO in hours
	// (OPENCODE_POLICY_REVIEW_P95_SLO_HOURS, default 24).
	PolicyReviewP95SLOHours float64

	// SecurityAuditMode is "advisory" to downgrade audit failures to
	// non-fatal (OPENCODE_SECURITY_AUDIT_MODE).
	SecurityAuditMode string

	// Breaker holds default Circuit Breaker Registry tuning.
	Breaker BreakerConfig

	// Strategy holds default Strategy Orchestrator tuning.
	Strategy StrategyConfig

	// Quota holds default Quota Manager tuning.
	Quota QuotaConfig

	// Plugin holds default Plugin Lifecycle Supervisor tuning.
	Plugin PluginConfig
}

// BreakerConfig configures default Circuit Breaker Registry thresholds (§4.4).
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// StrategyConfig configures default Strategy Orchestrator bypass behavior (§4.3).
type StrategyConfig struct {
	FailureThreshold int
	CooldownMillis   int
}

// QuotaConfig configures default Quota Manager behavior (§4.2).
type QuotaConfig struct {
	SnapshotStaleness time.Duration
}

// PluginConfig configures default Plugin Lifecycle Supervisor behavior (§4.5).
type PluginConfig struct {
	QuarantineThreshold int
}

// Default returns the configuration that applies when no environment
// variables or overlay file are present.
func Default() Config {
	return Config{
		Root:                        "~/.opencode",
		PolicyEvalMinDelta:          0,
		PolicySimMinAcceptanceRatio: 90,
		PolicyReviewP95SLOHours:     24,
		SecurityAuditMode:           "strict",
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Strategy: StrategyConfig{
			FailureThreshold: 3,
			CooldownMillis:   30000,
		},
		Quota: QuotaConfig{
			SnapshotStaleness: 500 * time.Millisecond,
		},
		Plugin: PluginConfig{
			QuarantineThreshold: 2,
		},
	}
}

// Load reads the environment (and, if overlayPath is non-empty and exists,
// a YAML overlay file) into a frozen Config. Environment variables always
// win over the overlay file, which in turn wins over Default(). Apart from
// cmd/controlplane reading OPENCODE_CONFIG to locate the overlay file, Load
// is the only place in this module that calls os.Getenv.
func Load(overlayPath string) (Config, error) {
	cfg := Default()

	if overlayPath != "" {
		if data, err := os.ReadFile(overlayPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	cfg.Root = envOr("OPENCODE_ROOT", cfg.Root)
	cfg.ReplaySeed = os.Getenv("OPENCODE_REPLAY_SEED")
	cfg.PolicyEvalMinDelta = envFloatOr("OPENCODE_POLICY_EVAL_MIN_DELTA", cfg.PolicyEvalMinDelta)
	cfg.PolicySimMinAcceptanceRatio = envFloatOr("OPENCODE_POLICY_SIM_MIN_ACCEPTANCE_RATIO", cfg.PolicySimMinAcceptanceRatio)
	cfg.PolicyReviewP95SLOHours = envFloatOr("OPENCODE_POLICY_REVIEW_P95_SLO_HOURS", cfg.PolicyReviewP95SLOHours)
	cfg.SecurityAuditMode = envOr("OPENCODE_SECURITY_AUDIT_MODE", cfg.SecurityAuditMode)

	cfg.Breaker.FailureThreshold = envIntOr("OPENCODE_BREAKER_FAILURE_THRESHOLD", cfg.Breaker.FailureThreshold)
	cfg.Breaker.SuccessThreshold = envIntOr("OPENCODE_BREAKER_SUCCESS_THRESHOLD", cfg.Breaker.SuccessThreshold)
	cfg.Breaker.Timeout = envDurationOr("OPENCODE_BREAKER_TIMEOUT", cfg.Breaker.Timeout)

	cfg.Strategy.FailureThreshold = envIntOr("OPENCODE_STRATEGY_FAILURE_THRESHOLD", cfg.Strategy.FailureThreshold)
	cfg.Strategy.CooldownMillis = envIntOr("OPENCODE_STRATEGY_COOLDOWN_MS", cfg.Strategy.CooldownMillis)

	cfg.Quota.SnapshotStaleness = envDurationOr("OPENCODE_QUOTA_SNAPSHOT_STALENESS", cfg.Quota.SnapshotStaleness)

	cfg.Plugin.QuarantineThreshold = envIntOr("OPENCODE_PLUGIN_QUARANTINE_THRESHOLD", cfg.Plugin.QuarantineThreshold)

	return cfg, nil
}

// Deterministic reports whether replay-seeded deterministic orchestration is
// enabled (§5 Replay-determinism requirement).
func (c Config) Deterministic() bool { return c.ReplaySeed != "" }

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envIntOr returns the environment variable as int or a default.
func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envFloatOr returns the environment variable as float64 or a default.
func envFloatOr(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// envDurationOr returns the environment variable as a duration or a default.
func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
