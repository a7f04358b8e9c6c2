package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mkwng/poegate/agent"
	"github.com/mkwng/poegate/config"
	"github.com/mkwng/poegate/deploy"
	"github.com/mkwng/poegate/llm"
	"github.com/mkwng/poegate/memory"
	"github.com/mkwng/poegate/poe"
	"github.com/mkwng/poegate/policy"
	"github.com/mkwng/poegate/store"
	"github.com/mkwng/poegate/supervisor"
	"github.com/mkwng/poegate/tools"
)

func main() {
	renderDockerfile := flag.Bool("render-dockerfile", false, "print the deployment Dockerfile and exit")
	flag.Parse()

	if *renderDockerfile {
		app := deploy.DefaultApp()
		if err := app.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid app descriptor: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(app.Image.Render())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Int("http_port", cfg.HTTPPort).Str("model", cfg.ModelID).Msg("starting poegate")

	ctx := context.Background()

	// Ensure the pgvector container is up before anything touches it.
	if !cfg.SupervisorDisabled {
		api, err := supervisor.NewDockerAPI()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create docker client")
		}
		probe := supervisor.NewPostgresProbe(cfg.Container.DSN())
		sup := supervisor.New(api, probe, cfg.Container, cfg.ReadyTimeout, logger)
		if err := sup.EnsureRunning(ctx); err != nil {
			logger.Fatal().Err(err).Msg("pgvector container did not become ready")
		}
	}

	db, err := store.Open(cfg.StoreBackend, cfg.SQLiteDSN, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	registry := tools.NewRegistry(cfg.Capabilities, llmClient, cfg.ModelID, cfg.FileWorkdir)
	logger.Info().Int("tools", registry.Len()).Msg("tool registry ready")

	var mem memory.Memory
	if cfg.MemoryEnabled && !cfg.SupervisorDisabled {
		pg, err := memory.New(ctx, cfg.Container.DSN(), llmClient, cfg.EmbeddingModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize vector memory")
		}
		defer pg.Close()
		mem = pg
	}

	bot := agent.New(llmClient, cfg.ModelID, registry, policyEngine, mem, db, logger,
		agent.WithMaxToolRounds(cfg.MaxToolRounds),
		agent.WithMemoryTopK(cfg.MemoryTopK),
	)
	sessions := agent.NewManager(bot)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	h := poe.NewHandler(sessions, db, cfg.AccessKey, logger)
	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
