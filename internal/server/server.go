// Package server assembles and runs the host-side orchestration service:
// registry, lifecycle management, sandbox provider, pipeline, scanner, and
// the HTTP surface, all over one in-process event bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/api"
	"github.com/CyberBigfoot/CleanSheet/internal/config"
	"github.com/CyberBigfoot/CleanSheet/internal/core/event"
	"github.com/CyberBigfoot/CleanSheet/internal/core/job"
	"github.com/CyberBigfoot/CleanSheet/internal/core/lifecycle"
	"github.com/CyberBigfoot/CleanSheet/internal/core/orchestrator"
	"github.com/CyberBigfoot/CleanSheet/internal/core/pipeline"
	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
	"github.com/CyberBigfoot/CleanSheet/internal/scanner"
	"github.com/CyberBigfoot/CleanSheet/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Debug().Str("level", cfg.Logging.Level).Msg("log level configured")

	if err := os.MkdirAll(cfg.Storage.WorkDir, 0o700); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	bus := event.NewBus()

	lifecycleMgr := lifecycle.NewManager(cfg.Storage.WorkDir)
	lifecycleMgr.SetupSubscribers(bus)

	registry := job.NewRegistry(bus)

	var provider sandbox.Provider
	switch cfg.Sandbox.Backend {
	case "docker":
		provider = sandbox.NewDockerProvider()
		log.Info().Str("image", cfg.Sandbox.Image).Msg("docker sandbox backend")
	case "local":
		provider = sandbox.NewLocalProvider(worker.Funcs())
		log.Warn().Msg("local sandbox backend: stages run unisolated, development only")
	default:
		return fmt.Errorf("unknown sandbox backend %q", cfg.Sandbox.Backend)
	}

	pipe := pipeline.New(provider, cfg.Pipeline.StageTimeout, cfg.Pipeline.RasterDPI)

	scan := scanner.New(cfg.Scanner.APIKey, cfg.Scanner.BaseURL,
		cfg.Scanner.Timeout, cfg.Scanner.PollTimeout)
	if scan.Configured() {
		log.Info().Msg("malware scanner enabled")
	} else {
		log.Info().Msg("malware scanner not configured, verdicts will be unavailable")
	}

	orch, err := orchestrator.New(cfg, orchestrator.Deps{
		Registry:  registry,
		Lifecycle: lifecycleMgr,
		Provider:  provider,
		Pipeline:  pipe,
		Scanner:   scan,
		Bus:       bus,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	// Sweep job dirs left behind by earlier runs, then keep sweeping.
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	go lifecycleMgr.RunReaper(reaperCtx, cfg.Storage.OrphanRetention, cfg.Storage.ReapInterval)

	e := echo.New()
	e.HideBanner = true

	api.SetupRouter(e, api.RouterConfig{Orch: orch})

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("CleanSheet started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reaperCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	orch.Shutdown()
	return nil
}
