package di

import (
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	priceadapters "marketdata_backend/internal/feature/prices/adapters"
	"marketdata_backend/internal/feature/prices/usecase"
	symboladapters "marketdata_backend/internal/feature/symbollist/adapters"
	"marketdata_backend/internal/platform/cache"
	"marketdata_backend/internal/shared/ratelimiter"
	"marketdata_backend/internal/shared/retry"
)

const (
	// backgroundSyncTimeout は呼び出し元が待機をやめた後も同期を続けられる上限です。
	backgroundSyncTimeout = 5 * time.Minute
	historyCacheTTL       = time.Hour
)

// MarketSource is the primary upstream: daily history and live quotes from the same provider.
type MarketSource interface {
	usecase.HistorySource
	usecase.QuoteSource
}

// Prices groups the usecases of the prices feature that share one limiter and one synchronizer.
type Prices struct {
	History *usecase.HistoryUsecase
	Quotes  *usecase.QuoteUsecase
}

// NewPrices wires the synchronization layer: one rate limiter and one backoff executor shared
// by the history fetch chain and live quotes, a Redis read-through cache over the price store
// (disabled when rdb is nil), and the in-memory quote cache.
func NewPrices(db *gorm.DB, rdb *redis.Client, cfg usecase.SyncConfig, primary MarketSource, alternate usecase.HistorySource) *Prices {
	limiter := ratelimiter.NewRateLimiter(cfg.MinInterval)
	executor := retry.NewExecutor(limiter, cfg.MaxAttempts, cfg.BaseDelay)

	symbols := symboladapters.NewSymbolRepository(db)
	store := cache.NewCachingPriceRepository(rdb, historyCacheTTL, priceadapters.NewPriceRepository(db), "prices")

	chain := usecase.NewFetchChain(primary, alternate, executor)
	syncer := usecase.NewSynchronizer(store, symbols, chain, backgroundSyncTimeout)

	return &Prices{
		History: usecase.NewHistoryUsecase(store, symbols, syncer, cfg.SyncTimeout, cfg.SyncCooldown),
		Quotes:  usecase.NewQuoteUsecase(primary, cache.NewQuoteCache(cfg.QuoteTTL), executor, symbols),
	}
}
