// Package main is the entry point for the cobranza API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cobranza/internal/domain/allocation"
	"cobranza/internal/domain/ledger"
	"cobranza/internal/domain/receipt"
	v1 "cobranza/internal/infrastructure/http/v1"
	"cobranza/internal/infrastructure/storage/postgres"
	"cobranza/internal/infrastructure/storage/postgres/allocation_repo"
	"cobranza/internal/infrastructure/storage/postgres/ledger_repo"
	"cobranza/internal/infrastructure/storage/postgres/receipt_repo"
	"cobranza/pkg/logger"
	"cobranza/pkg/numerator"
)

func main() {
	// Local development convenience; absence of .env is not an error.
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting cobranza server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	ledgerRepo := ledger_repo.NewDocumentRepo(txManager)
	allocationRepo := allocation_repo.NewAllocationRepo(txManager)
	receiptRepo := receipt_repo.NewReceiptRepo(txManager)

	// --- Numbering ---
	// The provider routes sequence increments through the active transaction.
	numeratorService := numerator.New(func(ctx context.Context) numerator.Querier {
		return txManager.GetQuerier(ctx)
	})

	// --- Domain services ---
	ledgerService := ledger.NewService(ledgerRepo, txManager)
	ledgerQuery := ledger.NewQueryService(ledgerRepo)
	engine := allocation.NewEngine(allocationRepo, ledgerRepo, txManager)
	receiptService := receipt.NewService(receiptRepo, ledgerRepo, engine, numeratorService, txManager)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:          pool,
		Logger:        log,
		LedgerService: ledgerService,
		LedgerQuery:   ledgerQuery,
		Engine:        engine,
		Receipts:      receiptService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
