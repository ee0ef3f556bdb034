package usecase

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// SyncConfig は同期レイヤーの調整値を保持します。
type SyncConfig struct {
	MinInterval  time.Duration // 上流API呼び出しの最小間隔（プロセス全体）
	MaxAttempts  int           // 1戦略あたりの試行回数
	BaseDelay    time.Duration // バックオフの初期待機時間
	SyncTimeout  time.Duration // 1回の同期に許す最大時間
	SyncCooldown time.Duration // 鮮度判定による再同期を抑止する期間
	QuoteTTL     time.Duration // ライブ株価キャッシュの有効期間
}

// DefaultSyncConfig は環境変数が未設定の場合に使用される値を返します。
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MinInterval:  8 * time.Second,
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		SyncTimeout:  30 * time.Second,
		SyncCooldown: 10 * time.Minute,
		QuoteTTL:     60 * time.Second,
	}
}

// LoadSyncConfig は環境変数から同期設定を読み込みます。
// 解析できない値は警告を出して既定値を使用します。
func LoadSyncConfig() SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.MinInterval = envDuration("MARKET_MIN_INTERVAL", cfg.MinInterval)
	cfg.MaxAttempts = envInt("MARKET_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.BaseDelay = envDuration("MARKET_BASE_DELAY", cfg.BaseDelay)
	cfg.SyncTimeout = envDuration("SYNC_TIMEOUT", cfg.SyncTimeout)
	cfg.SyncCooldown = envDuration("SYNC_COOLDOWN", cfg.SyncCooldown)
	cfg.QuoteTTL = envDuration("LIVE_QUOTE_TTL", cfg.QuoteTTL)
	return cfg
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
