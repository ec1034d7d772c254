package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tkellman/chunkline/internal/config"
	"github.com/tkellman/chunkline/internal/db"
	"github.com/tkellman/chunkline/internal/dispatch"
	"github.com/tkellman/chunkline/internal/orchestrator"
	"github.com/tkellman/chunkline/internal/processing"
	"github.com/tkellman/chunkline/internal/runlock"
	"github.com/tkellman/chunkline/internal/schedule"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	once := flag.Bool("once", false, "Run a single processing run and exit (for external schedulers)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting chunkline",
		"driver", cfg.Database.Driver,
		"dsn", cfg.Database.DSN,
		"lock_backend", cfg.Lock.Backend,
		"page_size", cfg.Pipeline.PageSize,
		"workers", cfg.Pipeline.Workers)

	database, err := db.OpenWithConfig(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err, "dsn", cfg.Database.DSN)
		os.Exit(1)
	}
	defer database.Close()

	if !cfg.Database.SkipMigrations {
		if err := database.Migrate(); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		version, err := database.SchemaVersion()
		if err != nil {
			slog.Error("failed to get schema version", "error", err)
			os.Exit(1)
		}
		slog.Info("database schema ready", "version", version)
	}

	var lock runlock.Lock
	switch cfg.Lock.Backend {
	case "file":
		lock = runlock.NewFileLock(cfg.Lock.Path)
	default:
		lock = runlock.NewDBLock(database)
	}

	pool := dispatch.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueDepth, logger)
	defer pool.StopWait()

	chunker := processing.NewChunker(database, logger)
	reporter := processing.NewLogReporter(logger)
	loop := processing.NewLoop(database, chunker, reporter, cfg.Pipeline.PageSize, logger)
	recorder := orchestrator.NewDBRecorder(database)

	orch := orchestrator.New(lock, database, pool, loop, recorder, cfg.Pipeline.PollInterval, logger)

	if *once {
		runOnce(orch)
		return
	}

	runDaemon(orch)
}

// runOnce executes a single processing run, exiting nonzero on a fatal
// run-level error such as an overlapping run
func runOnce(orch *orchestrator.Orchestrator) {
	if err := orch.Run(); err != nil {
		if runlock.IsOverlap(err) {
			slog.Warn("skipping run, another processing run is active", "error", err)
			os.Exit(2)
		}
		slog.Error("processing run failed", "error", err)
		os.Exit(1)
	}
}

// runDaemon triggers a processing run at every hour boundary until
// interrupted
func runDaemon(orch *orchestrator.Orchestrator) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("chunkline is running", "next_run", schedule.NextHourBoundary(time.Now()))

	for {
		timer := time.NewTimer(schedule.UntilNextHour(time.Now()))

		select {
		case <-sigChan:
			timer.Stop()
			slog.Info("shutting down gracefully")
			return

		case <-timer.C:
			if err := orch.Run(); err != nil {
				if runlock.IsOverlap(err) {
					slog.Warn("skipping run, another processing run is active")
					continue
				}
				slog.Error("processing run failed", "error", err)
			}
		}
	}
}

// newLogger builds the process logger from config
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
