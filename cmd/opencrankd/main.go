// opencrankd is an autonomous agent runtime: an iterative think -> emit
// tool calls -> execute -> feed results back loop over a pluggable model
// adapter, confined to a Landlock-sandboxed workspace.
//
// Usage:
//
//	opencrankd serve              Start the agent loop as a long-running process
//	opencrankd init [dir]         Write a default config.yaml into dir
//	opencrankd ask <question>     Ask a single question (for testing)
//	opencrankd version            Print version and build information
//	opencrankd -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/polaco1782/opencrank/internal/agent"
	"github.com/polaco1782/opencrank/internal/buildinfo"
	"github.com/polaco1782/opencrank/internal/chunker"
	"github.com/polaco1782/opencrank/internal/config"
	"github.com/polaco1782/opencrank/internal/contextmgr"
	"github.com/polaco1782/opencrank/internal/llm"
	"github.com/polaco1782/opencrank/internal/memory"
	"github.com/polaco1782/opencrank/internal/prompts"
	"github.com/polaco1782/opencrank/internal/sandbox"
	"github.com/polaco1782/opencrank/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the opencrankd command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: opencrankd ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "opencrankd - autonomous agent runtime")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: opencrankd [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Run the agent loop as a long-running process")
	fmt.Fprintln(w, "  init [dir]   Write a default config.yaml into dir (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/opencrank/config.yaml, /etc/opencrank/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// createLLMClient builds a multi-provider LLM client from the
// configuration. Each model listed in config is mapped to its provider
// (ollama, anthropic). Models not explicitly mapped fall through to the
// Ollama provider, which acts as the default backend.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.Anthropic.Configured() {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("anthropic provider configured")
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	logger.Info("llm client initialized", "default_model", cfg.Models.Default)
	return multi
}

// newLogger builds the process-wide structured logger. format selects
// between human-readable text and newline-delimited JSON.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// bootstrap wires the Sandbox, Memory Store, Content Chunker, and Tool
// Registry in the order the rest of the system depends on: the Sandbox
// must exist and be initialized before anything touches the filesystem,
// and the Tool Registry must exist before the Agent Loop is constructed.
// It returns a cleanup function that closes the Memory Store.
func bootstrap(cfg *config.Config, logger *slog.Logger) (*agent.Loop, func(), error) {
	sb := sandbox.New(logger)
	if err := sb.Init(); err != nil {
		return nil, nil, fmt.Errorf("sandbox init: %w", err)
	}

	store, err := memory.Open(sb.DBDir() + "/memory.db")
	if err != nil {
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}
	cleanup := func() { store.Close() }

	if enforced, err := sb.Activate(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("sandbox activate: %w", err)
	} else if !enforced {
		logger.Warn("running without filesystem sandboxing")
	}

	shellTimeout := tools.DefaultShellExecConfig().DefaultTimeout
	if cfg.ShellExec.DefaultTimeoutSec > 0 {
		shellTimeout = time.Duration(cfg.ShellExec.DefaultTimeoutSec) * time.Second
	}

	files := tools.NewFileTools(sb.JailDir())
	shell := tools.NewShellExec(tools.ShellExecConfig{
		Enabled:           cfg.ShellExec.Enabled,
		WorkingDir:        sb.JailDir(),
		DeniedCmds:        cfg.ShellExec.DeniedPatterns,
		AllowedCmds:       cfg.ShellExec.AllowedPrefixes,
		DefaultTimeout:    shellTimeout,
		MaxOutputBytes:    tools.DefaultShellExecConfig().MaxOutputBytes,
	})
	chunks := chunker.New(chunker.Config{})
	registry := tools.NewRegistry(files, shell, store, chunks)

	llmClient := createLLMClient(cfg, logger)

	agentCfg := agent.DefaultConfig()
	agentCfg.Model = cfg.Models.Default
	if cfg.Agent.MaxIterations > 0 {
		agentCfg.MaxIterations = cfg.Agent.MaxIterations
	}
	if cfg.Agent.MaxConsecutiveErrors > 0 {
		agentCfg.MaxConsecutiveErrors = cfg.Agent.MaxConsecutiveErrors
	}
	if cfg.Agent.MaxTokenLimitRetries > 0 {
		agentCfg.MaxTokenLimitRetries = cfg.Agent.MaxTokenLimitRetries
	}
	if cfg.Agent.AutoChunkLargeResults != nil {
		agentCfg.AutoChunkLargeResults = *cfg.Agent.AutoChunkLargeResults
	}
	if cfg.Agent.MaxToolResultSize > 0 {
		agentCfg.MaxToolResultSize = cfg.Agent.MaxToolResultSize
	}
	if cfg.Agent.ChunkSize > 0 {
		agentCfg.ChunkSize = cfg.Agent.ChunkSize
	}
	if cfg.Agent.Temperature > 0 {
		agentCfg.Temperature = cfg.Agent.Temperature
	}
	if cfg.Agent.MaxTokens > 0 {
		agentCfg.MaxTokens = cfg.Agent.MaxTokens
	}

	loop := agent.New(llmClient, registry, chunks, agentCfg, logger)

	ctxCfg := contextmgr.DefaultConfig()
	ctxCfg.DailyLogDir = sb.JailDir() + "/memory"
	if cfg.Context.MaxContextChars > 0 {
		ctxCfg.MaxContextChars = cfg.Context.MaxContextChars
	}
	if cfg.Context.ReserveForResponse > 0 {
		ctxCfg.ReserveForResponse = cfg.Context.ReserveForResponse
	}
	if cfg.Context.UsageThreshold > 0 {
		ctxCfg.UsageThreshold = cfg.Context.UsageThreshold
	}
	if cfg.Context.MaxResumeChars > 0 {
		ctxCfg.MaxResumeChars = cfg.Context.MaxResumeChars
	}
	if cfg.Context.AutoSaveMemory != nil {
		ctxCfg.AutoSaveMemory = *cfg.Context.AutoSaveMemory
	}
	loop.SetContextManager(contextmgr.New(ctxCfg, llmClient, memory.NewContextAdapter(store), logger))

	return loop, cleanup, nil
}

// runAsk boots the agent runtime and processes a single question,
// printing the final response to stdout.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	question := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	loop, cleanup, err := bootstrap(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	session := agent.NewSession()
	result := loop.Run(ctx, session, question, prompts.BaseSystemPrompt())
	if result.Paused {
		fmt.Fprintln(stdout, result.PauseMessage)
		return nil
	}
	if !result.Success {
		return fmt.Errorf("ask: %s", result.Error)
	}
	fmt.Fprintln(stdout, result.FinalResponse)
	return nil
}

// runServe boots the agent runtime and keeps the process alive until ctx
// is cancelled (SIGINT/SIGTERM). The actual transport (an HTTP API, a
// chat frontend) is intentionally out of scope here; serve exists as the
// long-running process mode the Context Manager's daily-log persistence
// and the Memory Store's task due-date tracking assume.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	_, cleanup, err := bootstrap(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("opencrankd running; waiting for shutdown signal")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
