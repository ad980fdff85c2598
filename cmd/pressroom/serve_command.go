package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"pressroom/internal/api"
	"pressroom/internal/archiver"
	"pressroom/internal/config"
	"pressroom/internal/extractor"
	"pressroom/internal/feedfetch"
	"pressroom/internal/finalizer"
	"pressroom/internal/generator"
	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/notifications"
	"pressroom/internal/pipeline"
	"pressroom/internal/scorer"
	"pressroom/internal/services/llm"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pressroom HTTP server and background scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := preflightDataDir(cfg.Paths.DataDir); err != nil {
		return err
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "pressroom.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another pressroom instance holds %s", lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	logPath := filepath.Join(cfg.Paths.LogDir, "pressroom.log")
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "pressroom.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := issue.Open(cfg)
	if err != nil {
		logger.Error("open issue store", logging.Error(err))
		return err
	}
	defer store.Close()

	dispatcher := pipeline.NewHTTPDispatcher(
		cfg.Server.BaseURL,
		cfg.Server.APIToken,
		time.Duration(cfg.Server.DispatchTimeout)*time.Second,
		logger,
	)
	defer dispatcher.Wait()

	notifier := notifications.NewService(cfg)
	runner := buildRunner(cfg, store, notifier, dispatcher, logger)
	recovery := pipeline.NewRecoveryScanner(store, dispatcher, logger,
		time.Duration(cfg.Workflow.RecoveryMinAge)*time.Minute)
	monitor := pipeline.NewFailureMonitor(store, notifier, logger, cfg.Workflow.AlertBatchSize)

	server := api.NewServer(api.Options{
		Store:              store,
		Runner:             runner,
		Recovery:           recovery,
		Monitor:            monitor,
		Logger:             logger,
		APIToken:           cfg.Server.APIToken,
		StaleInProgressAge: time.Duration(cfg.Workflow.StaleInProgressAge) * time.Minute,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go recovery.Run(signalCtx, time.Duration(cfg.Workflow.RecoveryInterval)*time.Second)
	go monitor.Run(signalCtx, time.Duration(cfg.Workflow.MonitorInterval)*time.Second)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("pressroom serving",
			logging.String("bind", cfg.Server.Bind),
			logging.String("base_url", cfg.Server.BaseURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-signalCtx.Done():
	}

	logger.Info("pressroom shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Error(err))
	}
	return nil
}

func buildRunner(cfg *config.Config, store *issue.Store, notifier notifications.Service, dispatcher pipeline.Dispatcher, logger *slog.Logger) *pipeline.Runner {
	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})

	runner := pipeline.NewRunner(store, logger, dispatcher)
	runner.Register(pipeline.StepArchive, archiver.New(store, logger))
	runner.Register(pipeline.StepFetchFeeds, feedfetch.New(store, logger, feedfetch.Options{
		RequestTimeout: time.Duration(cfg.Feeds.RequestTimeout) * time.Second,
		MaxPostsPerRun: cfg.Feeds.MaxPostsPerRun,
	}))
	runner.Register(pipeline.StepExtractArticles, extractor.New(store, logger, extractor.Options{
		RequestTimeout: time.Duration(cfg.Feeds.RequestTimeout) * time.Second,
		ExtractWindow:  time.Duration(cfg.Feeds.ExtractWindow) * time.Hour,
	}))
	runner.Register(pipeline.StepScore, scorer.New(store, llmClient, logger))
	runner.Register(pipeline.StepGenerateArticles, generator.New(store, llmClient, logger, cfg.Generation.PostsPerSection))
	runner.Register(pipeline.StepFinalize, finalizer.New(store, notifier, logger))
	return runner
}

// preflightDataDir fails fast when the data directory is not fully accessible,
// before the lock and logger touch it.
func preflightDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dir, err)
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("data directory %s is not readable and writable: %w", dir, err)
	}
	return nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
