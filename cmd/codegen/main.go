// Codegen is an AI code-generation assistant backed by locally-hosted
// Ollama models.
//
// It exposes a JSON HTTP API for code generation with automatic retry
// on malformed model output, artifact history, evaluation telemetry,
// and user feedback analysis, plus a CLI for one-shot generation and
// reference-document ingestion. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	codegen serve              Start the API server
//	codegen ask <prompt>       Generate code for a single prompt
//	codegen ingest <file.md>   Import a markdown document into the retrieval index
//	codegen version            Print version and build information
//	codegen -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/api"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/buildinfo"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/codegen"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/config"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/embeddings"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/evaluation"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/feedback"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/gateway"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/history"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/ingest"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/llm"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/output"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/retrieval"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit, os.Stdout, and os.Args out of the application logic so the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the codegen command. OS-level
// dependencies are injected as parameters so tests can drive the CLI.
// Arguments are parsed by hand: the flag package relies on
// package-level globals, and our argument surface is small enough that
// manual parsing is clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Environment overrides (e.g. OLLAMA_URL for ${...} expansion in the
	// config file) may live in a local .env; absence is not an error.
	_ = godotenv.Load()

	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
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
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: codegen ask <prompt>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: codegen ingest <file.md>")
		}
		return runIngest(ctx, stdout, stderr, configPath, cmdArgs[0])
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
	fmt.Fprintln(w, "Codegen - AI Code Generation Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: codegen [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Generate code for a single prompt")
	fmt.Fprintln(w, "  ingest       Import markdown docs into the retrieval index")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/codegen/config.yaml, /etc/codegen/config.yaml")
	return nil
}

// runAsk handles the "codegen ask <prompt>" subcommand. It drives a
// single generation run without the API server, retrieval index, or
// persistent stores, printing the artifact (or raw fallback text) to
// stdout. Useful for smoke tests and debugging.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	prompt := strings.Join(args, " ")

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}

	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	gw := gateway.New(ollamaClient, logger)
	defer gw.Close()

	var timeout time.Duration
	if cfg.Generation.TimeoutSec > 0 {
		timeout = time.Duration(cfg.Generation.TimeoutSec) * time.Second
	}

	// No retrieval for one-shots; the prompt stands alone.
	agent := codegen.NewPipeline(gw, nil, cfg.Models.DefaultChat, cfg.Models.DefaultCode, timeout, logger)
	ctrl := codegen.NewController(agent, logger, codegen.WithMaxAttempts(cfg.Generation.MaxAttempts))

	outcome := ctrl.Run(ctx, codegen.Request{
		Prompt:    prompt,
		ChatModel: cfg.Models.DefaultChat,
		CodeModel: cfg.Models.DefaultCode,
	})

	switch outcome.Kind {
	case codegen.OutcomeSuccess:
		fmt.Fprintf(stdout, "# %s\n\n%s\n\n%s\n", outcome.Artifact.Filename, outcome.Artifact.Description, outcome.Artifact.Code)
		return nil
	case codegen.OutcomeFallback:
		fmt.Fprintln(stderr, "warning: output did not parse; showing raw model text")
		fmt.Fprintln(stdout, outcome.RawOutput)
		return nil
	default:
		return fmt.Errorf("generation failed after %d attempts: %s", len(outcome.Attempts), outcome.Err)
	}
}

// runIngest handles the "codegen ingest <file.md>" subcommand. It
// splits a markdown document into per-section chunks and stores them in
// the retrieval index, generating embeddings when enabled.
func runIngest(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, filePath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("ingesting markdown document", "file", filePath)

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	embedder := newEmbedder(cfg, logger)

	index, err := retrieval.NewIndex(filepath.Join(cfg.DataDir, "retrieval.db"), embedder)
	if err != nil {
		return fmt.Errorf("open retrieval index: %w", err)
	}
	defer index.Close()

	ingester := ingest.New(index, embedder, logger)
	count, err := ingester.IngestFile(ctx, filePath)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	logger.Info("ingestion complete", "chunks", count, "file", filePath)
	fmt.Fprintf(stdout, "Successfully ingested %d chunks from %s\n", count, filePath)
	return nil
}

// runServe handles the "codegen serve" subcommand. It is the primary
// operating mode: loads config, opens the stores, wires the gateway and
// retrieval index, starts the API server, and blocks until a shutdown
// signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting codegen", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"port", cfg.Listen.Port,
		"chat_model", cfg.Models.DefaultChat,
		"code_model", cfg.Models.DefaultCode,
		"ollama_url", cfg.Models.OllamaURL,
	)

	// All persistent state (history database, retrieval index, JSON
	// evaluation and feedback logs) lives under the data directory.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	if err := ollamaClient.Ping(ctx); err != nil {
		logger.Warn("ollama not reachable at startup", "url", cfg.Models.OllamaURL, "error", err)
	}

	gw := gateway.New(ollamaClient, logger)
	defer gw.Close()

	// Retrieval index is optional. Without embeddings the index still
	// opens but semantic search returns nothing, so generation proceeds
	// on the prompt alone.
	var index *retrieval.Index
	if cfg.Embeddings.Enabled {
		embedder := newEmbedder(cfg, logger)
		index, err = retrieval.NewIndex(filepath.Join(cfg.DataDir, "retrieval.db"), embedder)
		if err != nil {
			return fmt.Errorf("open retrieval index: %w", err)
		}
		defer index.Close()
		logger.Info("retrieval enabled", "model", cfg.Embeddings.Model)
	} else {
		logger.Info("retrieval disabled (embeddings not enabled)")
	}

	evalLog, err := evaluation.NewLog(filepath.Join(cfg.DataDir, "evaluation_log.json"))
	if err != nil {
		return fmt.Errorf("open evaluation log: %w", err)
	}
	recorder := evaluation.NewRecorder(evalLog, logger)

	feedbackStore, err := feedback.NewStore(filepath.Join(cfg.DataDir, "feedback.json"))
	if err != nil {
		return fmt.Errorf("open feedback store: %w", err)
	}
	analyzer := feedback.NewAnalyzer(gw, cfg.Models.DefaultChat, logger)

	artifacts, err := history.NewStore(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer artifacts.Close()

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory %s: %w", cfg.OutputDir, err)
	}
	writer := output.NewWriter(cfg.OutputDir)

	server := api.NewServer(cfg, api.Deps{
		Gateway:   gw,
		Ollama:    ollamaClient,
		Index:     index,
		EvalLog:   evalLog,
		Recorder:  recorder,
		Feedback:  feedbackStore,
		Analyzer:  analyzer,
		Artifacts: artifacts,
		Writer:    writer,
	}, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("codegen stopped")
	return nil
}

// newLogger creates a structured text logger that writes to w at the
// given level. All log output goes through slog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfigOrDefault locates and parses the YAML configuration file.
// When no config file exists anywhere on the search path and none was
// requested explicitly, built-in defaults apply; the tool is useful
// with zero configuration against a local Ollama.
func loadConfigOrDefault(explicit string) (*config.Config, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		return config.Default(), nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

// newEmbedder returns an embedding client when embeddings are enabled,
// or nil.
func newEmbedder(cfg *config.Config, logger *slog.Logger) retrieval.Embedder {
	if !cfg.Embeddings.Enabled {
		return nil
	}
	baseURL := cfg.Embeddings.BaseURL
	if baseURL == "" {
		baseURL = cfg.Models.OllamaURL
	}
	logger.Info("embeddings enabled", "model", cfg.Embeddings.Model, "url", baseURL)
	return embeddings.New(embeddings.Config{
		BaseURL: baseURL,
		Model:   cfg.Embeddings.Model,
	})
}
