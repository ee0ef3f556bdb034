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

	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"

	"marketdata_backend/internal/app/di"
	"marketdata_backend/internal/app/router"
	priceshandler "marketdata_backend/internal/feature/prices/transport/handler"
	pricesusecase "marketdata_backend/internal/feature/prices/usecase"
	symbollisthandler "marketdata_backend/internal/feature/symbollist/transport/handler"
	platformhandler "marketdata_backend/internal/platform/http/handler"
	"marketdata_backend/internal/platform/db"
	"marketdata_backend/internal/platform/externalapi/twelvedata"
	"marketdata_backend/internal/platform/externalapi/yahoo"
	"marketdata_backend/internal/platform/logging"
	infraredis "marketdata_backend/internal/platform/redis"
	"marketdata_backend/internal/platform/scheduler"
)

// scheduledRefreshTimeout は定時一括更新1回に許す時間です。
const scheduledRefreshTimeout = 30 * time.Minute

func main() {
	// .envを読み込む
	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	marketCfg := twelvedata.LoadConfig()
	if err := marketCfg.Validate(); err != nil {
		slog.Error("invalid market data configuration", "error", err)
		os.Exit(1)
	}

	// db
	gdb, err := db.OpenDB(ctx, db.LoadConfigFromEnv())
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		slog.Error("failed to get database handle", "error", err)
		os.Exit(1)
	}
	readiness := map[string]platformhandler.Check{"db": sqlDB.PingContext}

	// Redis（なければ履歴キャッシュなしで動作）
	var rdb *redisv9.Client
	if tmp, err := infraredis.NewRedisClient(ctx, infraredis.LoadConfig()); err != nil {
		slog.Warn("Redis unavailable. Running without history cache.", "error", err)
	} else {
		rdb = tmp
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close Redis client", "error", err)
			}
		}()
	}

	// Usecase
	symbolUC := di.NewSymbolUsecase(gdb)
	if _, err := di.RegisterUniverse(ctx, symbolUC); err != nil {
		slog.Error("failed to register symbol universe", "error", err)
		os.Exit(1)
	}
	prices := di.NewPrices(gdb, rdb, pricesusecase.LoadSyncConfig(),
		di.NewMarket(marketCfg), di.NewAlternateSource(yahoo.LoadConfig()))

	// Handler
	pricesH := priceshandler.NewPricesHandler(prices.History, prices.Quotes)
	refreshAllH := priceshandler.NewRefreshAllHandler(prices.History, os.Getenv("REFRESH_SECRET"))
	symbolH := symbollisthandler.NewSymbolHandler(symbolUC)
	if os.Getenv("REFRESH_SECRET") == "" {
		slog.Warn("REFRESH_SECRET is not set. /internal/refresh-all is disabled.")
	}

	// 平日の定時一括更新
	sched, err := scheduler.NewScheduler(prices.History, scheduler.LoadSchedule(), scheduledRefreshTimeout)
	if err != nil {
		slog.Error("invalid refresh schedule", "error", err)
		os.Exit(1)
	}
	if err := sched.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router.NewRouter(pricesH, refreshAllH, symbolH, readiness),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
