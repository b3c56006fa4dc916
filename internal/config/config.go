// Package config loads the service configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
)

// Config is the full service configuration tree.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Sensitivity  SensitivityConfig  `mapstructure:"sensitivity"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Quality      QualityConfig      `mapstructure:"quality"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// SensitivityConfig tunes the gate.
type SensitivityConfig struct {
	ApprovalThreshold int           `mapstructure:"approval_threshold"`
	AutoMask          bool          `mapstructure:"auto_mask"`
	ScanTimeout       time.Duration `mapstructure:"scan_timeout"`
}

// AnalysisConfig tunes the pipeline.
type AnalysisConfig struct {
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	TopK       int           `mapstructure:"top_k"`
}

// QualityConfig tunes the deliverable machine.
type QualityConfig struct {
	PolicyPath     string        `mapstructure:"policy_path"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// ConversationConfig tunes session handling.
type ConversationConfig struct {
	IdleExpiry    time.Duration `mapstructure:"idle_expiry"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// BreakerConfig tunes the shared circuit breaker defaults.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Sensitivity: SensitivityConfig{
			ApprovalThreshold: 50,
			AutoMask:          true,
			ScanTimeout:       10 * time.Second,
		},
		Analysis: AnalysisConfig{
			RunTimeout: 180 * time.Second,
			TopK:       5,
		},
		Quality: QualityConfig{
			ProcessTimeout: 120 * time.Second,
		},
		Conversation: ConversationConfig{
			IdleExpiry:    24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          30 * time.Second,
		},
	}
}

// Load reads configuration from the given file (optional) with WORKTASK_*
// environment overrides layered on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WORKTASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("sensitivity.approval_threshold", defaults.Sensitivity.ApprovalThreshold)
	v.SetDefault("sensitivity.auto_mask", defaults.Sensitivity.AutoMask)
	v.SetDefault("sensitivity.scan_timeout", defaults.Sensitivity.ScanTimeout)
	v.SetDefault("analysis.run_timeout", defaults.Analysis.RunTimeout)
	v.SetDefault("analysis.top_k", defaults.Analysis.TopK)
	v.SetDefault("quality.policy_path", defaults.Quality.PolicyPath)
	v.SetDefault("quality.process_timeout", defaults.Quality.ProcessTimeout)
	v.SetDefault("conversation.idle_expiry", defaults.Conversation.IdleExpiry)
	v.SetDefault("conversation.sweep_interval", defaults.Conversation.SweepInterval)
	v.SetDefault("breaker.failure_threshold", defaults.Breaker.FailureThreshold)
	v.SetDefault("breaker.success_threshold", defaults.Breaker.SuccessThreshold)
	v.SetDefault("breaker.timeout", defaults.Breaker.Timeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Validation("config_unreadable", "cannot read config %s: %v", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Validation("config_invalid", "cannot decode config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return apperrors.Validation("config_invalid", "unknown log level %q", c.Log.Level)
	}
	if c.Sensitivity.ApprovalThreshold < 0 || c.Sensitivity.ApprovalThreshold > 100 {
		return apperrors.Validation("config_invalid", "approval threshold must be within [0,100]")
	}
	if c.Analysis.TopK <= 0 {
		return apperrors.Validation("config_invalid", "analysis top_k must be positive")
	}
	if c.Analysis.RunTimeout <= 0 || c.Quality.ProcessTimeout <= 0 {
		return apperrors.Validation("config_invalid", "timeouts must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.SuccessThreshold <= 0 {
		return apperrors.Validation("config_invalid", "breaker thresholds must be positive")
	}
	return nil
}
