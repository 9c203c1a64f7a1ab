package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/llm"
	"github.com/lazypower/constellation/internal/logging"
	"github.com/lazypower/constellation/internal/memsearch"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/server"
)

const breakerCoolDown = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine and the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, dbPath, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	deps := engine.Deps{
		DB:      db,
		Feed:    openFeed(cfg),
		Metrics: metrics.New(),
		Logger:  log,
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Warn("LLM not configured, assisted extraction and cleanup disabled", zap.Error(err))
	} else {
		deps.LLM = llm.NewBreaker(client, breakerCoolDown, logging.Named(log, "llm"))
		log.Info("llm configured", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))
	}
	if cfg.Search.URL != "" {
		search := memsearch.NewHTTPClient(cfg.Search.URL, cfg.Search.APIKey, cfg.Search.Timeout)
		deps.Search = memsearch.NewCached(search, cfg.Search.CacheTTL)
		log.Info("cross-reference search configured", zap.String("url", cfg.Search.URL))
	}

	eng := engine.New(cfg, deps)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng, VersionString()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("constellation serving",
			zap.String("addr", addr),
			zap.String("db", dbPath),
			zap.String("feed", cfg.Feed.Dir))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var errs []error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			errs = append(errs, fmt.Errorf("serve: %w", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop engine: %w", err))
	}
	return errors.Join(errs...)
}
