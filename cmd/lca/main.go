// Command lca is a local task-automation agent: it plans with a local LLM
// runtime, asks before every side effect, and executes approved actions
// against the local machine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourorg/lca/internal/agents"
	"github.com/yourorg/lca/internal/config"
	"github.com/yourorg/lca/internal/executor"
	"github.com/yourorg/lca/internal/llm"
	"github.com/yourorg/lca/internal/orchestrator"
	"github.com/yourorg/lca/internal/permission"
	"github.com/yourorg/lca/internal/workspace"
)

type cliFlags struct {
	configPath    string
	provider      string
	model         string
	baseURL       string
	workingDir    string
	maxIterations int
	allowAll      bool
	verbose       bool
}

// app is the wired system shared by the subcommands.
type app struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	orch   *orchestrator.Orchestrator
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "lca",
		Short:         "Local agent system using LLMs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.lca/config.yaml)")
	pf.StringVarP(&flags.provider, "provider", "p", "", "LLM provider: ollama or lmstudio")
	pf.StringVarP(&flags.model, "model", "m", "", "model identifier")
	pf.StringVar(&flags.baseURL, "base-url", "", "provider base URL")
	pf.StringVarP(&flags.workingDir, "working-dir", "w", "", "working directory for actions")
	pf.IntVar(&flags.maxIterations, "max-iterations", 0, "planning cycles per task")
	pf.BoolVar(&flags.allowAll, "allow-all", false, "allow all operations without prompting (USE WITH CAUTION)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newExecuteCmd(flags))
	root.AddCommand(newAgentCmd(flags))
	root.AddCommand(newInteractiveCmd(flags))

	return root
}

// setup resolves config (file < env < flags), builds the logger, and wires
// the provider client, agents, gate, engine, and orchestrator.
func setup(flags *cliFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.provider != "" {
		cfg.Provider = flags.provider
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}
	if flags.workingDir != "" {
		cfg.WorkingDir = flags.workingDir
	}
	if flags.maxIterations > 0 {
		cfg.MaxIterations = flags.maxIterations
	}
	if flags.allowAll {
		cfg.AllowAll = true
	}

	logger, err := newLogger(flags.verbose)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(cfg.WorkingDir)
	if err != nil {
		return nil, err
	}

	if cfg.AllowAll {
		logger.Warn("running with blanket permissions enabled (--allow-all)")
	}

	registry := agents.NewDefaultRegistry(client, ws, logger)

	orch := orchestrator.New(orchestrator.Config{
		Registry:      registry,
		Router:        agents.NewLLMRouter(client, logger),
		Gate:          permission.NewTerminalGate(os.Stdin, os.Stdout),
		Engine:        executor.NewEngine(executor.Config{WorkDir: ws.Root(), Logger: logger}),
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
	})

	return &app{cfg: cfg, logger: logger, orch: orch}, nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.OutputPaths = []string{"stderr"}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
