package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-arena/internal/arenabuilder"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := arenabuilder.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("arena_init_error", zap.Error(err))
	}

	deps.Scheduler.Start()
	if n, err := deps.Sessions.Restore(ctx); err != nil {
		logger.Error("restore_error", zap.Error(err))
	} else {
		logger.Info("restore_done", zap.Int("games", n))
	}

	go func() { _ = deps.Sessions.Run(ctx) }()
	go func() { _ = deps.Invites.Run(ctx, time.Minute) }()
	if deps.Notifier != nil {
		go func() { _ = deps.Notifier.Run(ctx) }()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           deps.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_start")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("deps_close_error", zap.Error(err))
	}
	logger.Info("shutdown_done")
}
