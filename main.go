package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatrelay/config"
	"chatrelay/controllers"
	"chatrelay/gateway"
	"chatrelay/routes"
	"chatrelay/services"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	kv, err := services.NewKVStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("history store init failed")
	}
	defer kv.Close()
	logger.Info().Str("store", cfg.Store).Msg("history store ready")

	generator, err := services.NewGenerator(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("generator init failed")
	}

	history := services.NewHistoryStore(kv, cfg.KeyPrefix, services.SystemClock)
	hub := gateway.NewHub(logger, cfg.AllowedOrigins)
	orchestrator := services.NewOrchestrator(generator, history, hub, logger).
		WithIdleTimeout(cfg.GeneratorIdleTimeout)
	chat := controllers.NewChatController(history, orchestrator, hub, logger, controllers.ChatOptions{
		Window:       cfg.ContextWindow,
		DefaultModel: cfg.DefaultModel,
	})

	router := routes.SetupRouter(routes.Deps{
		Logger:         logger,
		Hub:            hub,
		Chat:           chat,
		History:        history,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("generator", cfg.Generator).
			Str("model", cfg.DefaultModel).
			Msg("starting chat relay")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	hub.Close()
	if err := hub.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("in-flight streams did not finish before timeout")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
