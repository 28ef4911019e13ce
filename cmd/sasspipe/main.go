package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattjoyce/sasspipe/internal/api"
	"github.com/mattjoyce/sasspipe/internal/config"
	"github.com/mattjoyce/sasspipe/internal/doctor"
	"github.com/mattjoyce/sasspipe/internal/history"
	"github.com/mattjoyce/sasspipe/internal/lock"
	"github.com/mattjoyce/sasspipe/internal/log"
	"github.com/mattjoyce/sasspipe/internal/render"
	"github.com/mattjoyce/sasspipe/internal/staging"
	"github.com/mattjoyce/sasspipe/internal/tui/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "render":
		os.Exit(runRender(args))
	case "watch":
		os.Exit(runWatch(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("sasspipe version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`sasspipe - queued, crash-resilient Sass compile daemon

Usage:
  sasspipe <command> [flags]

Commands:
  start     Start the compile daemon in foreground
  render    Compile one stylesheet and exit
  watch     Live TUI over a running daemon
  doctor    Validate configuration and environment
  version   Show version information
  help      Show this help message

Use 'sasspipe <command> -h' for command-specific flags.
`)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Defaults(), nil
	}
	return config.Load(configPath)
}

// tempBase resolves the staging base directory for a config.
func tempBase(cfg *config.Config) string {
	if cfg.TempDir != "" {
		return cfg.TempDir
	}
	return filepath.Join(os.TempDir(), "sasspipe")
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("sasspipe starting", "version", version, "listen", cfg.Listen)

	lockPath := filepath.Join(tempBase(cfg), "sasspipe.lock")
	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hist *history.Store
	if cfg.HistoryDB != "" {
		hist, err = history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.HistoryDB, "error", err)
			return 1
		}
		defer hist.Close()
		logger.Info("history database opened", "path", cfg.HistoryDB)
	}

	stg := staging.NewManager(tempBase(cfg))
	pipe := render.NewPipeline(cfg, hist)
	svc := render.NewService(cfg, pipe, stg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("pipeline: %w", err)
		}
	}()

	apiServer := api.New(api.Config{Listen: cfg.Listen}, svc, historyReader(hist), log.WithComponent("api"))
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("sasspipe running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("sasspipe stopped")
	return 0
}

// historyReader converts a possibly-nil store into the API's optional
// reader. A typed nil inside a non-nil interface would defeat the server's
// nil check.
func historyReader(hist *history.Store) api.HistoryReader {
	if hist == nil {
		return nil
	}
	return hist
}

func runRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	outFile := fs.String("out", "", "Output CSS path (required)")
	style := fs.String("style", "", "Output style (nested|expanded|compact|compressed)")
	sourceMap := fs.String("source-map", "", "Source map output path")
	compilerName := fs.String("compiler", "", "Compiler to use (default from config)")
	var includes stringList
	fs.Var(&includes, "I", "Include path (repeatable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if fs.NArg() != 1 || *outFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: sasspipe render [flags] -out <file.css> <file.scss>")
		return 1
	}
	entry := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe := render.NewPipeline(cfg, nil)
	go func() { _ = pipe.Run(ctx) }()

	svc := render.NewService(cfg, pipe, staging.NewManager(tempBase(cfg)))
	result, compileErrs, err := svc.Render(ctx, render.Spec{
		File:         entry,
		OutFile:      *outFile,
		IncludePaths: includes,
		OutputStyle:  *style,
		SourceMap:    *sourceMap,
		Compiler:     *compilerName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render failed: %v\n", err)
		return 1
	}
	if len(compileErrs) > 0 {
		for _, ce := range compileErrs {
			fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", ce.Path, ce.Line, ce.Column, ce.Message)
		}
		return 2
	}

	if err := os.WriteFile(*outFile, []byte(result.CSS), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *outFile, err)
		return 1
	}
	if *sourceMap != "" && result.Map != nil {
		raw, err := json.Marshal(result.Map)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode source map: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*sourceMap, raw, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *sourceMap, err)
			return 1
		}
	}
	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s:%d:%d: %s\n",
			result.Error.Path, result.Error.Line, result.Error.Column, result.Error.Message)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api", "http://127.0.0.1:8376", "Base URL of the daemon API")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if err := watch.Run(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output report in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	r := doctor.New(cfg).Validate()
	if *configPath != "" {
		if raw, err := os.ReadFile(*configPath); err == nil {
			r.Warnings = append(r.Warnings, doctor.CheckEnvRefs(raw)...)
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(r)
	} else {
		for _, e := range r.Errors {
			fmt.Printf("ERROR   [%s] %s: %s\n", e.Category, e.Field, e.Message)
		}
		for _, w := range r.Warnings {
			fmt.Printf("WARNING [%s] %s: %s\n", w.Category, w.Field, w.Message)
		}
		if r.Valid {
			fmt.Println("Configuration OK")
		}
	}

	if !r.Valid {
		return 1
	}
	return 0
}

// stringList collects repeatable flag values.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
