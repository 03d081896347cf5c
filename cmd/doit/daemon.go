package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/doit/internal/audit"
	"github.com/fentz26/doit/internal/blobstore"
	"github.com/fentz26/doit/internal/bookmark"
	"github.com/fentz26/doit/internal/config"
	"github.com/fentz26/doit/internal/controlplane"
	"github.com/fentz26/doit/internal/logging"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/pipeline"
	"github.com/fentz26/doit/internal/scheduler"
	"github.com/fentz26/doit/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	listenAddr string
	dbPath     string
	blobRoot   string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the DoIt daemon",
	Long:  `Starts the DoIt daemon which serves the HTTP API and runs queued jobs.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().StringVar(&blobRoot, "blobs", "", "Evidence blob directory (overrides config)")
}

func loadDaemonConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if blobRoot != "" {
		cfg.Blobs.Root = blobRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadDaemonConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting DoIt daemon",
		zap.String("version", controlplane.Version),
		zap.String("config", configPath),
		zap.String("oracle", cfg.Oracle.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	s, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing database connection")
		if err := s.Close(); err != nil {
			logger.Error("database close error", zap.Error(err))
		}
	}()

	blobs, err := blobstore.NewFS(cfg.Blobs.Root)
	if err != nil {
		return err
	}

	gw, err := oracle.New(ctx, cfg.Oracle, cfg.OracleTimeout(), logger)
	if err != nil {
		return err
	}

	var searcher bookmark.Searcher
	if cfg.Search.YouTubeAPIKey != "" {
		searcher = bookmark.NewYouTube(cfg.Search.YouTubeAPIKey, cfg.SearchTimeout(), cfg.Search.MaxResults, logger)
	} else {
		logger.Info("no youtube api key configured, bookmark search disabled")
	}

	// Initialize components
	rec := audit.NewRecorder(s)
	dispatcher := pipeline.NewDispatcher(s, rec, logger)
	worker := pipeline.NewWorker(s, blobs, gw, searcher, rec, pipeline.Config{
		BatchSize:        cfg.Pipeline.BatchSize,
		LocalAggregates:  cfg.Pipeline.LocalAggregates,
		StructuredOutput: cfg.Oracle.StructuredOutput,
	}, logger)

	schedCfg := cfg.Scheduler
	schedCfg.Timeouts = cfg.JobTimeouts()
	sched := scheduler.New(s, rec, worker, &schedCfg, logger.Named("scheduler"))

	// Create service and server
	service := controlplane.NewService(s, blobs, dispatcher, worker, sched)
	server := controlplane.NewServer(service, cfg.Server.Listen, logger)

	sched.Start()
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil {
		logger.Error("daemon stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return err
}
