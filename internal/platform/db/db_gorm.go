// Package db はPostgreSQL接続（pgxプール + gorm）の初期化を提供します。
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	priceadapters "marketdata_backend/internal/feature/prices/adapters"
	symbolentity "marketdata_backend/internal/feature/symbollist/domain/entity"
)

// ErrMissingDatabaseURL は DATABASE_URL が設定されていない場合に返されます。
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is not set")

const (
	defaultMaxConns = 10
	defaultMinConns = 1
	// retryInterval は起動時の接続リトライ間隔です。
	retryInterval = 3 * time.Second
)

// Config はデータベース接続設定です。
type Config struct {
	URL           string
	MaxConns      int
	MinConns      int
	RunMigrations bool
}

// LoadConfigFromEnv は環境変数から接続設定を読み込みます。
func LoadConfigFromEnv() Config {
	cfg := Config{
		URL:           os.Getenv("DATABASE_URL"),
		MaxConns:      defaultMaxConns,
		MinConns:      defaultMinConns,
		RunMigrations: os.Getenv("RUN_MIGRATIONS") == "true",
	}
	if n, err := strconv.Atoi(os.Getenv("DB_MAX_CONNS")); err == nil && n > 0 {
		cfg.MaxConns = n
	}
	if n, err := strconv.Atoi(os.Getenv("DB_MIN_CONNS")); err == nil && n >= 0 {
		cfg.MinConns = n
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	return cfg
}

// Validate は必須項目が設定されているか検証します。
func (c Config) Validate() error {
	if c.URL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// Opener はDSNからgormのDBを開く関数です。テストでは差し替えます。
type Opener func(dsn string) (*gorm.DB, error)

// ConnectWithRetry は timeout が経過するまで opener による接続を繰り返します。
func ConnectWithRetry(dsn string, timeout time.Duration, opener Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		slog.Warn("db connect failed, retrying", "error", err)
		time.Sleep(retryInterval)
	}
}

// poolConfig は接続文字列にプールサイズを反映した pgxpool の設定を返します。
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	return pc, nil
}

// PoolOpener は pgxpool を作成し、その上に gorm を載せる Opener を返します。
func PoolOpener(ctx context.Context, cfg Config) Opener {
	return func(string) (*gorm.DB, error) {
		pc, err := poolConfig(cfg)
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		sqlDB := stdlib.OpenDBFromPool(pool)
		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
		if err != nil {
			_ = sqlDB.Close()
			pool.Close()
			return nil, fmt.Errorf("open gorm: %w", err)
		}
		return db, nil
	}
}

// OpenDB はPostgreSQLに接続し、RunMigrations が有効であればマイグレーションを実行します。
func OpenDB(ctx context.Context, cfg Config) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := ConnectWithRetry(cfg.URL, 60*time.Second, PoolOpener(ctx, cfg))
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		slog.Info("database migrated")
	}
	return db, nil
}

// Migrate は価格テーブルと銘柄テーブルを作成・更新します。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&priceadapters.PricePointModel{},
		&symbolentity.Symbol{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
