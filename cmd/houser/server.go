package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mezhov/houser/internal/api"
	"github.com/mezhov/houser/internal/config"
	"github.com/mezhov/houser/internal/ingest"
	"github.com/mezhov/houser/internal/predict"
	"github.com/mezhov/houser/internal/registry"
	"github.com/mezhov/houser/internal/schedule"
	"github.com/mezhov/houser/internal/training"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the houser server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running houser server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show houser system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "houser.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "houser version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse a second instance. Check via health endpoint, not just the
	// PID file, so stale files do not block a restart.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("houser is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("houser is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the registry.
	store, err := registry.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing registry: %v\n", err)
		}
	}()

	// Build the pipeline.
	trainer := training.New(training.Config{
		TestRatio: cfg.Training.TestRatio,
		Seed:      int64(cfg.Training.Seed),
		MinRows:   cfg.Training.MinRows,
	})
	runner := training.NewRunner(store, trainer, cfg.Training.MaxCategories)
	predictor := predict.New(store, slog.Default())
	ingestor := ingest.New(store, slog.Default())

	// Warm the serving cache if a model already exists.
	if err := predictor.Reload(); err == nil {
		slog.Info("serving model version", "version", predictor.ActiveVersionID())
	}

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Ingestor:  ingestor,
		Runner:    runner,
		Predictor: predictor,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the training worker.
	reload := func() {
		if err := predictor.Reload(); err != nil {
			slog.Error("reloading predictor", "error", err)
		}
	}
	worker := training.NewWorker(store, runner, reload, 500*time.Millisecond)
	go worker.Run(ctx)

	// Watch the drop directory, if configured.
	if cfg.Ingest.WatchDir != "" {
		watcher, err := ingest.NewWatcher(ingestor, cfg.Ingest.WatchDir, slog.Default())
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("watcher stopped", "error", err)
			}
		}()
	}

	// Scheduled retraining, if configured.
	retrainer, err := schedule.New(store, cfg.Training.RetrainSchedule, slog.Default())
	if err != nil {
		return err
	}
	retrainer.Start()
	defer retrainer.Stop()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "houser listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("houser is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop houser (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to houser (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		cli := &apiClient{
			baseURL:    serverURL,
			token:      cfg.Server.APIToken,
			httpClient: client,
		}

		var models []struct {
			ID string `json:"id"`
		}
		if resp, err := cli.get(context.Background(), "/models?limit=100"); err == nil {
			if decodeJSON(resp, &models) == nil {
				printStatus("Model versions", "%s", countLabel(len(models), 100))
			}
		}

		var active struct {
			ID        string  `json:"id"`
			Algorithm string  `json:"algorithm"`
			MAE       float64 `json:"mae"`
		}
		if resp, err := cli.get(context.Background(), "/models/active"); err == nil {
			if decodeJSON(resp, &active) == nil {
				printStatus("Active model", "%s (%s, MAE %.2f)", active.ID, active.Algorithm, active.MAE)
			} else {
				printStatus("Active model", "none trained yet")
			}
		}

		var datasets []struct {
			ID string `json:"id"`
		}
		if resp, err := cli.get(context.Background(), "/datasets?limit=100"); err == nil {
			if decodeJSON(resp, &datasets) == nil {
				printStatus("Datasets", "%s", countLabel(len(datasets), 100))
			}
		}
	}

	if cfg.Ingest.WatchDir != "" {
		printStatus("Watch dir", "%s", cfg.Ingest.WatchDir)
	}
	if cfg.Training.RetrainSchedule != "" {
		printStatus("Retrain schedule", "%s", cfg.Training.RetrainSchedule)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
