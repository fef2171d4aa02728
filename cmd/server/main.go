package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"points/internal/auth"
	"points/internal/config"
	"points/internal/db"
	"points/internal/handlers"
	"points/internal/ledger"
	"points/internal/services"
	"points/internal/store"
	"points/internal/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	sessions, closeSessions := newSessionRegistry(ctx, cfg, logger)
	defer closeSessions()

	txRunner := db.NewTxRunner(database)
	accounts := store.NewAccountStore(database)
	confirmations := store.NewConfirmationStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	ledgerStore := store.NewLedgerStore(database, txRunner, cfg.LedgerLockWait)

	hub := websocket.NewHub()
	engine := ledger.NewEngine(ledgerStore, services.NewDirectory(accounts), hub, logger.Named("ledger"))
	accountService := services.NewAccountService(txRunner, accounts, confirmations, admin, audit, engine, sessions, services.AccountConfig{
		JWTSecret:       cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		ConfirmTokenTTL: cfg.ConfirmTokenTTL,
		AdminEmails:     cfg.AdminEmails,
	}, logger.Named("accounts"))
	statements := services.NewStatementService(engine, accounts)

	handler := handlers.New(cfg, accountService, engine, statements, admin, audit, ledgerStore, hub, logger.Named("http"))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("points API listening", zap.String("addr", server.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// newSessionRegistry uses Redis when REDIS_ADDR is set so that sessions
// survive restarts and are shared between instances. Without it sessions are
// kept in process memory.
func newSessionRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger) (auth.SessionRegistry, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
		return auth.NewMemorySessions(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return auth.NewRedisSessions(client), func() { _ = client.Close() }
}
