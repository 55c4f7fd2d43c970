package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikeboe/deep-research/pkg/app"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/server"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, cleanup, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize research engine", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := server.NewService(engine, cfg.MaxBreadth, cfg.MaxDepth, logger)
	handler := server.NewHandler(svc)
	r := server.NewRouter(handler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
}
