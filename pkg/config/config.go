// Package config loads autopilot run configuration from YAML files and the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/retry"
	"github.com/entrhq/autopilot/pkg/session"
)

// Environment variables that override file values.
const (
	EnvEndpoint = "AUTOPILOT_ENDPOINT"
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvBaseURL  = "OPENAI_BASE_URL"
	EnvModel    = "AUTOPILOT_MODEL"
)

// Config represents the configuration for one autopilot run
type Config struct {
	Task      TaskConfig     `yaml:"task" json:"task"`
	Server    ServerConfig   `yaml:"server" json:"server"`
	Retry     RetryConfig    `yaml:"retry" json:"retry"`
	Tools     ToolsConfig    `yaml:"tools" json:"tools"`
	LLM       LLMConfig      `yaml:"llm" json:"llm"`
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
}

// TaskConfig describes what to do and how many steps it may take
type TaskConfig struct {
	Objective  string `yaml:"objective" json:"objective"`
	StepBudget int    `yaml:"step_budget" json:"step_budget"`

	// Plan is a scripted plan file. When set, the LLM is not used.
	Plan string `yaml:"plan" json:"plan"`
}

// ServerConfig defines the tool server session
type ServerConfig struct {
	Endpoint        string        `yaml:"endpoint" json:"endpoint"`
	InvokeTimeout   time.Duration `yaml:"invoke_timeout" json:"invoke_timeout"`
	DialTimeout     time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"` // 0 disables the circuit breaker
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for" json:"breaker_open_for"`
}

// RetryConfig defines backoff for retryable dispatch failures
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	Jitter      bool          `yaml:"jitter" json:"jitter"`
}

// ToolsConfig restricts which advertised tools the oracle may see
type ToolsConfig struct {
	Allow []string `yaml:"allow" json:"allow"`
	Deny  []string `yaml:"deny" json:"deny"`
}

// LLMConfig defines the decision oracle model
type LLMConfig struct {
	Model            string  `yaml:"model" json:"model"`
	BaseURL          string  `yaml:"base_url" json:"base_url"`
	APIKey           string  `yaml:"api_key" json:"-"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	MaxHistoryTokens int     `yaml:"max_history_tokens" json:"max_history_tokens"`
	Instructions     string  `yaml:"instructions" json:"instructions"`
}

// ArtifactConfig defines artifact generation
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// Verbosity levels
const (
	VerbosityQuiet   = "quiet"
	VerbosityNormal  = "normal"
	VerbosityVerbose = "verbose"
	VerbosityDebug   = "debug"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Task: TaskConfig{
			StepBudget: 20,
		},
		Server: ServerConfig{
			Endpoint:       "ws://localhost:8765/rpc",
			InvokeTimeout:  session.DefaultInvokeTimeout,
			DialTimeout:    session.DefaultDialTimeout,
			BreakerOpenFor: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		},
		LLM: LLMConfig{
			Model:            "gpt-4o",
			Temperature:      0.2,
			MaxHistoryTokens: 60000,
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: "./autopilot-artifacts",
		},
		Logging: LoggingConfig{
			Verbosity: VerbosityNormal,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path loads defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. The API key is only
// taken from the environment when the file does not set one.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Server.Endpoint = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" && c.LLM.BaseURL == "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Task.Objective == "" {
		return fmt.Errorf("task objective is required")
	}
	if c.Task.StepBudget <= 0 {
		return fmt.Errorf("step_budget must be positive, got %d", c.Task.StepBudget)
	}
	if c.Server.Endpoint == "" {
		return fmt.Errorf("server endpoint is required")
	}
	if c.Server.InvokeTimeout < 0 || c.Server.DialTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if c.Server.BreakerFailures < 0 {
		return fmt.Errorf("breaker_failures cannot be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}
	if c.Retry.Multiplier != 0 && c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1, got %g", c.Retry.Multiplier)
	}
	if c.LLM.MaxHistoryTokens < 0 {
		return fmt.Errorf("max_history_tokens cannot be negative")
	}
	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts output_dir is required when artifacts are enabled")
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = VerbosityNormal
	}
	switch c.Logging.Verbosity {
	case VerbosityQuiet, VerbosityNormal, VerbosityVerbose, VerbosityDebug:
	default:
		return fmt.Errorf("invalid verbosity: %s (must be quiet, normal, verbose or debug)", c.Logging.Verbosity)
	}
	return nil
}

// RetryPolicy converts the retry section to a policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Multiplier:  c.Retry.Multiplier,
		Jitter:      c.Retry.Jitter,
	}
}

// SessionOptions converts the server section to session options.
func (c *Config) SessionOptions() []session.Option {
	opts := []session.Option{
		session.WithInvokeTimeout(c.Server.InvokeTimeout),
		session.WithDialTimeout(c.Server.DialTimeout),
	}
	if c.Server.BreakerFailures > 0 {
		opts = append(opts, session.WithCircuitBreaker(c.Server.BreakerFailures, c.Server.BreakerOpenFor))
	}
	return opts
}

// LogLevel maps verbosity to the file logger level.
func (c *Config) LogLevel() logging.Level {
	switch c.Logging.Verbosity {
	case VerbosityDebug:
		return logging.LevelDebug
	case VerbosityQuiet:
		return logging.LevelWarn
	default:
		return logging.LevelInfo
	}
}
