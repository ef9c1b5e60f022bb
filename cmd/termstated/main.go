package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/entl/termstate/internal/config"
	"github.com/entl/termstate/internal/console"
	"github.com/entl/termstate/internal/handle"
	"github.com/entl/termstate/internal/logfile"
	"github.com/entl/termstate/internal/logging"
	"github.com/entl/termstate/internal/metrics"
	"github.com/entl/termstate/internal/session"
	"github.com/entl/termstate/internal/storage"
)

// version and build are injected at link time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.build=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	build   = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termstated: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Fields:      map[string]string{"service": "termstated"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "termstated: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("termstated stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// run restores the console session, keeps it saved until ctx is done, and
// saves it a final time.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("starting termstated",
		zap.String("version", version),
		zap.String("build", build),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("log_dir", cfg.Storage.LogDir))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// --- Metadata store ---------------------------------------------------
	var store storage.MetadataStore
	switch cfg.Storage.Backend {
	case "file":
		store = storage.NewFileStore(cfg.MetadataPath())
	default:
		db, err := storage.NewDB(cfg.MetadataPath())
		if err != nil {
			return fmt.Errorf("failed to open metadata database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("db close error", zap.Error(err))
			}
		}()
		store = db.Store(cfg.Storage.Scope)
	}

	// --- Console records --------------------------------------------------
	handles, err := handle.New(handle.Format(cfg.Console.HandleFormat))
	if err != nil {
		return err
	}
	logs := logfile.NewStore(cfg.Storage.LogDir)
	m := metrics.New()

	mgr := session.NewManager(session.Options{
		Factory:        console.NewFactory(logs, handles, logger.Component(logging.ComponentConsole)),
		Logs:           logs,
		Store:          store,
		Logger:         logger.Component(logging.ComponentSession),
		Metrics:        m,
		MaxOutputLines: cfg.Console.MaxOutputLines,
	})

	if _, err := mgr.Restore(ctx); err != nil {
		// Unreadable metadata stays in place and nothing is reaped; the
		// session runs but is not saved until the store is repaired.
		logger.Error("console session restore failed, metadata will not be saved",
			zap.Error(err))
		mgr.MarkReady()
	}
	for _, p := range mgr.List() {
		s := p.Summary()
		logger.Debug("restored console process",
			zap.String("handle", s.Handle),
			zap.String("caption", s.Caption),
			zap.String("mode", s.Mode))
	}

	saver := session.NewSaver(mgr, cfg.Storage.SaveInterval, logger.Component(logging.ComponentSaver))

	// --- Metrics endpoint -------------------------------------------------
	var srv *http.Server
	if cfg.Metrics.Address != "" {
		mlog := logger.Component(logging.ComponentMetrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			mlog.Info("metrics listening", zap.String("addr", cfg.Metrics.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mlog.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down termstated")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}

	if err := saver.Close(); err != nil && !errors.Is(err, session.ErrRestoreFailed) {
		return fmt.Errorf("final save: %w", err)
	}
	logger.Info("termstated stopped")
	return nil
}
