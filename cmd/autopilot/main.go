// Package main provides the autopilot command: it runs one objective against
// a remote tool server until the objective completes, fails or exhausts its
// step budget.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/entrhq/autopilot/pkg/agent"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/oracle/openai"
	"github.com/entrhq/autopilot/pkg/oracle/scripted"
	"github.com/entrhq/autopilot/pkg/report"
	"github.com/entrhq/autopilot/pkg/task"
)

const version = "0.1.0"

// Exit codes by terminal status.
const (
	exitCompleted = 0
	exitFailed    = 1
	exitAborted   = 2
)

// CLIConfig holds command-line configuration. Set flags override the config
// file.
type CLIConfig struct {
	ConfigFile  string
	Task        string
	Prompt      string
	Plan        string
	Budget      int
	Endpoint    string
	Model       string
	OutputDir   string
	Verbosity   string
	NoArtifacts bool
	ShowVersion bool

	set map[string]bool
}

func main() {
	cli := parseFlags()
	if cli.ShowVersion {
		fmt.Printf("autopilot v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n\nCancelling run...")
		cancel()
	}()

	code := run(ctx, cli)
	cancel()
	os.Exit(code)
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}
	defaults := config.DefaultConfig()

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.Task, "task", "", "Objective to achieve")
	flag.StringVar(&cli.Prompt, "prompt", "", "Use a predefined objective ("+strings.Join(promptNames(), ", ")+")")
	flag.StringVar(&cli.Plan, "plan", "", "Replay a scripted plan file instead of asking the LLM")
	flag.IntVar(&cli.Budget, "budget", defaults.Task.StepBudget, "Maximum number of steps")
	flag.StringVar(&cli.Endpoint, "endpoint", defaults.Server.Endpoint, "Tool server WebSocket endpoint")
	flag.StringVar(&cli.Model, "model", defaults.LLM.Model, "LLM model to use")
	flag.StringVar(&cli.OutputDir, "output", defaults.Artifacts.OutputDir, "Directory for run artifacts")
	flag.StringVar(&cli.Verbosity, "verbosity", defaults.Logging.Verbosity, "Console output: quiet, normal, verbose or debug")
	flag.BoolVar(&cli.NoArtifacts, "no-artifacts", false, "Do not write run artifacts")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Autopilot - tool-driven task runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: autopilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExit status: 0 completed, 1 failed, 2 step budget exceeded\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run an objective against a local browserd\n")
		fmt.Fprintf(os.Stderr, "  autopilot -task \"Open example.com and report the heading\" -budget 10\n\n")
		fmt.Fprintf(os.Stderr, "  # Run the browser smoke test\n")
		fmt.Fprintf(os.Stderr, "  autopilot -prompt test\n\n")
		fmt.Fprintf(os.Stderr, "  # Run with config file\n")
		fmt.Fprintf(os.Stderr, "  autopilot -config autopilot.yaml\n\n")
	}

	flag.Parse()
	cli.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { cli.set[f.Name] = true })
	return cli
}

// run executes one task and returns the process exit code.
func run(ctx context.Context, cli *CLIConfig) int {
	cfg, err := loadConfig(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailed
	}

	logging.SetLevel(cfg.LogLevel())
	console := report.NewConsole(report.ParseLevel(cfg.Logging.Verbosity))

	o, err := newOracle(cfg)
	if err != nil {
		console.Errorf("Failed to create oracle: %v", err)
		return exitFailed
	}

	t, err := task.New(cfg.Task.Objective, cfg.Task.StepBudget)
	if err != nil {
		console.Errorf("Invalid task: %v", err)
		return exitFailed
	}

	loop := newLoop(cfg, o, console)

	console.Header("Autopilot v" + version)
	console.Infof("Task:     %s", firstLine(t.Objective, 200))
	console.Infof("Endpoint: %s", cfg.Server.Endpoint)
	console.Infof("Budget:   %d steps", t.StepBudget)

	state, runErr := loop.Run(ctx, t)
	summary := report.Summarize(state, runErr)

	if cfg.Artifacts.Enabled {
		dir, err := report.NewArtifactWriter(cfg.Artifacts.OutputDir).WriteAll(summary)
		if err != nil {
			console.Warningf("Failed to write artifacts: %v", err)
		} else {
			console.Infof("Artifacts written to %s", dir)
		}
	}
	console.Summary(summary)

	return exitCode(state.Status)
}

// newLoop builds the control loop. The retry section governs both tool
// dispatch and the oracle.
func newLoop(cfg *config.Config, o oracle.Oracle, observer agent.Observer) *agent.Loop {
	return agent.NewLoop(
		agent.Dial(cfg.Server.Endpoint, cfg.SessionOptions()...),
		o,
		agent.WithRetryPolicy(cfg.RetryPolicy()),
		agent.WithOracleRetryPolicy(cfg.RetryPolicy()),
		agent.WithToolFilter(cfg.Tools.Allow, cfg.Tools.Deny),
		agent.WithObserver(observer),
	)
}

func exitCode(status task.Status) int {
	switch status {
	case task.StatusCompleted:
		return exitCompleted
	case task.StatusAborted:
		return exitAborted
	default:
		return exitFailed
	}
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	switch {
	case cli.Prompt != "":
		objective, err := lookupPrompt(cli.Prompt)
		if err != nil {
			return nil, err
		}
		cfg.Task.Objective = objective
	case cli.Task != "":
		cfg.Task.Objective = cli.Task
	}
	if cli.Plan != "" {
		cfg.Task.Plan = cli.Plan
	}
	if cli.set["budget"] {
		cfg.Task.StepBudget = cli.Budget
	}
	if cli.set["endpoint"] {
		cfg.Server.Endpoint = cli.Endpoint
	}
	if cli.set["model"] {
		cfg.LLM.Model = cli.Model
	}
	if cli.set["output"] {
		cfg.Artifacts.OutputDir = cli.OutputDir
	}
	if cli.set["verbosity"] {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	if cli.NoArtifacts {
		cfg.Artifacts.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newOracle replays a plan when one is configured and asks the LLM
// otherwise.
func newOracle(cfg *config.Config) (oracle.Oracle, error) {
	if cfg.Task.Plan != "" {
		plan, err := scripted.LoadPlan(cfg.Task.Plan)
		if err != nil {
			return nil, err
		}
		scriptedOracle, err := scripted.New(plan)
		if err != nil {
			return nil, err
		}
		return scriptedOracle, nil
	}

	opts := []openai.Option{
		openai.WithModel(cfg.LLM.Model),
		openai.WithTemperature(cfg.LLM.Temperature),
		openai.WithMaxHistoryTokens(cfg.LLM.MaxHistoryTokens),
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Instructions != "" {
		opts = append(opts, openai.WithInstructions(cfg.LLM.Instructions))
	}
	llmOracle, err := openai.New(cfg.LLM.APIKey, opts...)
	if err != nil {
		return nil, err
	}
	return llmOracle, nil
}

func firstLine(s string, limit int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
