package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-pos/internal/salesstub"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sales-stub"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadStub()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sales-stub",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	fixtures := salesstub.DefaultFixtures()
	if cfg.Stub.FixturesPath != "" {
		fixtures, err = salesstub.LoadFixtures(cfg.Stub.FixturesPath)
		if err != nil {
			logg.Error(context.Background(), "failed to load fixtures", err)
			os.Exit(1)
		}
	}

	stub := salesstub.NewServer(salesstub.ServerParams{
		Logger:   logg,
		Store:    redisClient,
		Ledger:   salesstub.NewMemoryLedger(),
		Fixtures: fixtures,
		KeyTTL:   cfg.Redis.KeyTTL,
		ClaimTTL: cfg.Stub.ClaimTTL,
		Numbers:  redisClient,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Stub.Port,
		Handler:           stub.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": srv.Addr,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "sales stub shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting sales stub")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "sales stub stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "sales stub shutting down gracefully")
}
