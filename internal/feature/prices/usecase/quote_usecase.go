package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/shared/retry"
)

// quoteFetchTimeout は共有された上流呼び出し1回（リトライを含む）の上限です。
const quoteFetchTimeout = 30 * time.Second

// QuoteSource は上流APIから現在の株価スナップショットを取得するインターフェイスです。
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (entity.LiveQuote, error)
}

// QuoteCache はライブ株価の短期キャッシュです。期限切れのエントリは存在しないものとして扱われます。
type QuoteCache interface {
	Get(symbol string) (entity.LiveQuote, bool)
	Put(symbol string, q entity.LiveQuote)
}

// QuoteUsecase はライブ株価の取得ユースケースを定義します。
type QuoteUsecase struct {
	source   QuoteSource
	cache    QuoteCache
	executor *retry.Executor
	symbols  SymbolRepository
	now      func() time.Time
	group    singleflight.Group
}

// NewQuoteUsecase は新しい QuoteUsecase を生成します。symbols は nil でも構いません。
func NewQuoteUsecase(source QuoteSource, cache QuoteCache, executor *retry.Executor, symbols SymbolRepository) *QuoteUsecase {
	return &QuoteUsecase{
		source:   source,
		cache:    cache,
		executor: executor,
		symbols:  symbols,
		now:      time.Now,
	}
}

// GetLiveQuote はキャッシュが有効ならそれを返し、なければ上流から取得してキャッシュします。
// 取得できなかった場合は ok=false を返します（エラーにはしません）。
//
// 上流呼び出しは同じ銘柄の同時リクエストで共有され、呼び出し元のキャンセルとは切り離して
// quoteFetchTimeout まで続行します。各呼び出し元は自分の ctx が終了した時点で待機をやめます。
func (u *QuoteUsecase) GetLiveQuote(ctx context.Context, symbol string) (entity.LiveQuote, bool) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return entity.LiveQuote{}, false
	}
	if q, ok := u.cache.Get(symbol); ok {
		return q, true
	}

	ch := u.group.DoChan(symbol, func() (any, error) {
		// 待機中に別のリクエストがキャッシュを更新している場合がある
		if q, ok := u.cache.Get(symbol); ok {
			return q, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), quoteFetchTimeout)
		defer cancel()

		q, err := retry.Do(fctx, u.executor, func(ctx context.Context) (entity.LiveQuote, error) {
			return u.source.GetQuote(ctx, symbol)
		})
		if err != nil {
			return nil, err
		}
		q.Symbol = symbol
		// キャッシュの有効期限は上流の取引時刻ではなく取得時刻で判定する
		q.CapturedAt = u.now()
		u.cache.Put(symbol, q)
		u.recordDisplayName(fctx, symbol, q.Name)
		return q, nil
	})

	select {
	case <-ctx.Done():
		slog.Warn("live quote wait abandoned", "symbol", symbol, "error", ctx.Err())
		return entity.LiveQuote{}, false
	case res := <-ch:
		if res.Err != nil {
			slog.Warn("live quote unavailable", "symbol", symbol, "error", res.Err)
			return entity.LiveQuote{}, false
		}
		return res.Val.(entity.LiveQuote), true
	}
}

// recordDisplayName はプロバイダーが返した銘柄名を銘柄マスタに反映します（ベストエフォート）。
func (u *QuoteUsecase) recordDisplayName(ctx context.Context, symbol, name string) {
	if u.symbols == nil || name == "" {
		return
	}
	if err := u.symbols.UpsertDisplayName(ctx, symbol, name); err != nil {
		slog.Warn("failed to update symbol display name", "symbol", symbol, "error", err)
	}
}
