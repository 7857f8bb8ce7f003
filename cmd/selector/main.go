package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai_selector/internal/config"
	"ai_selector/internal/httpapi"
	"ai_selector/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger("main").Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	utils.InitLogging(cfg.LogLevel, nil)
	logger := utils.NewLogger("main")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	// Vendor calls are wired by the embedding application; without an
	// executor the service offers selection and accounting only.
	handler, deps, err := httpapi.NewRouter(startCtx, cfg, nil)
	cancelStart()
	if err != nil {
		logger.Error("Failed to build router", "error", err)
		os.Exit(1)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("AI selector listening",
			"addr", addr,
			"ledger", cfg.Ledger.Backend,
			"catalog", cfg.Catalog.Source,
			"archive", cfg.Archive.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Server forced to shutdown", "error", err)
	}

	// Stops the archive worker, which flushes queued records, then closes
	// Redis and Postgres.
	if err := deps.Close(ctx); err != nil {
		logger.Warn("Failed to release dependencies", "error", err)
	}

	logger.Info("Server exited")
}
