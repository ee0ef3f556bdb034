package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"marketdata_backend/internal/app/di"
	pricesusecase "marketdata_backend/internal/feature/prices/usecase"
	"marketdata_backend/internal/platform/db"
	"marketdata_backend/internal/platform/externalapi/twelvedata"
	"marketdata_backend/internal/platform/externalapi/yahoo"
	"marketdata_backend/internal/platform/logging"
)

// 使い方:
//
//	ingest [-timeout 30m] [SYMBOL ...]
//
// 銘柄を省略した場合は登録済みの全銘柄を更新します。
func main() {
	timeout := flag.Duration("timeout", 30*time.Minute, "overall time limit for the batch")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	logging.Setup()

	marketCfg := twelvedata.LoadConfig()
	if err := marketCfg.Validate(); err != nil {
		slog.Error("invalid market data configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	gdb, err := db.OpenDB(ctx, db.LoadConfigFromEnv())
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	if _, err := di.RegisterUniverse(ctx, di.NewSymbolUsecase(gdb)); err != nil {
		slog.Error("failed to register symbol universe", "error", err)
		os.Exit(1)
	}

	// バッチでは履歴キャッシュを使わない
	prices := di.NewPrices(gdb, nil, pricesusecase.LoadSyncConfig(),
		di.NewMarket(marketCfg), di.NewAlternateSource(yahoo.LoadConfig()))

	report, err := prices.History.RefreshAll(ctx, uuid.NewString(), flag.Args())
	if err != nil {
		slog.Error("ingest failed", "job_id", report.JobID, "error", err)
		os.Exit(1)
	}
	if report.Failed > 0 {
		slog.Warn("ingest finished with failures", "job_id", report.JobID, "failed", report.Failed, "total", report.Total)
		os.Exit(2)
	}
	slog.Info("ingest ok", "job_id", report.JobID, "updated", report.Updated, "total", report.Total)
}
