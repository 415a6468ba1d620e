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

	"github.com/gin-gonic/gin"

	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/handler"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/registry"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	// Room storage backend
	st, err := store.New(store.Config{
		Driver: cfg.Store.Driver,
		Redis: store.RedisConfig{
			Address:   cfg.Store.Redis.Address,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		},
		Database: cfg.Store.Database,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open room store")
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("room store ready")

	// Optional room event fan-out
	publisher, err := pubsub.NewPublisher(cfg.Events)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to create event publisher")
	}
	defer publisher.Close()

	client := llm.NewOpenAI(nil, llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if cfg.LLM.APIKey == "" {
		logger.Warn().Str("base_url", cfg.LLM.BaseURL).Msg("no LLM API key configured")
	}

	// Room actors
	rooms := registry.New(
		registry.NewFactory(st, client, publisher, cfg.Room),
		registry.Config{
			IdleTimeout:   cfg.Room.IdleTimeout,
			SweepInterval: cfg.Room.SweepInterval,
		},
	)
	rooms.Start()

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	handler.NewHandler(rooms, cfg.WebSocket).RegisterRoutes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("model", cfg.LLM.Model).Msg("workspace-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down workspace-service")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := rooms.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to flush rooms")
	}

	logger.Info().Msg("workspace-service stopped")
}
