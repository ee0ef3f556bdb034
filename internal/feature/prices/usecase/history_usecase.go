package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marketdata_backend/internal/feature/prices/domain/entity"
)

const (
	// MaxHistoryLimit は1回のレスポンスで返す最大件数です。0以下を指定した場合もこの件数になります。
	MaxHistoryLimit = 5000
	// refreshAllConcurrency は一括更新で同時に進める銘柄数です。上流呼び出し自体はレートリミッタで直列化されます。
	refreshAllConcurrency = 4
)

// RefreshResult は手動更新の結果です。
type RefreshResult struct {
	Symbol     string
	Updated    bool
	Reason     string
	LatestDate *time.Time
}

// RefreshReport は一括更新の集計です。
type RefreshReport struct {
	JobID   string
	Total   int
	Updated int
	Failed  int
}

// HistoryUsecase は価格履歴の取得・更新ユースケースを定義します。
type HistoryUsecase struct {
	prices   PriceRepository
	symbols  SymbolRepository
	sync     *Synchronizer
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastAttempt map[string]time.Time
}

// NewHistoryUsecase は新しい HistoryUsecase を生成します。
// timeout はリクエストが同期を待つ上限、cooldown は鮮度判定による再同期を抑止する期間です。
func NewHistoryUsecase(prices PriceRepository, symbols SymbolRepository, sync *Synchronizer, timeout, cooldown time.Duration) *HistoryUsecase {
	return &HistoryUsecase{
		prices:      prices,
		symbols:     symbols,
		sync:        sync,
		timeout:     timeout,
		cooldown:    cooldown,
		now:         time.Now,
		lastAttempt: make(map[string]time.Time),
	}
}

// GetHistory は保存済みの価格履歴を新しい順に返します。
//
// データが古い場合（または forceRefresh の場合）は先に同期を実行します。
// 同期が失敗・タイムアウトしても保存済みデータがあればそれを返し、エラーにはしません。
// 一度もデータを取得できていない銘柄は ErrSymbolNotFound を返します。
func (u *HistoryUsecase) GetHistory(ctx context.Context, symbol string, forceRefresh bool, limit int) (entity.History, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return entity.History{}, err
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	wm, ok, err := u.prices.GetWatermark(ctx, symbol)
	if err != nil {
		return entity.History{}, fmt.Errorf("%w: get watermark %s: %w", ErrStoreUnavailable, symbol, err)
	}

	timedOut := false
	if u.shouldSync(symbol, wm, ok, forceRefresh) {
		res, err := u.syncWithTimeout(ctx, symbol)
		switch {
		case errors.Is(err, ErrStoreUnavailable):
			return entity.History{}, err
		case err != nil:
			if ctx.Err() != nil {
				return entity.History{}, ctx.Err()
			}
			slog.Warn("synchronization did not finish in time, serving stored data", "symbol", symbol, "error", err)
			timedOut = true
		case res.State == StateFetchFailed:
			slog.Info("serving stored data after failed refresh", "symbol", symbol)
		}
	}

	points, err := u.prices.FindPricePoints(ctx, symbol, limit, time.Time{})
	if err != nil {
		return entity.History{}, fmt.Errorf("%w: find prices %s: %w", ErrStoreUnavailable, symbol, err)
	}
	if len(points) == 0 {
		if timedOut {
			return entity.History{}, ErrTemporarilyUnavailable
		}
		return entity.History{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return entity.History{Symbol: symbol, Points: points}, nil
}

// RefreshSymbol は鮮度判定やクールダウンに関係なく同期ステートマシンを1回実行します。
func (u *HistoryUsecase) RefreshSymbol(ctx context.Context, symbol string) (RefreshResult, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return RefreshResult{}, err
	}
	u.markAttempt(symbol)

	res, err := u.syncWithTimeout(ctx, symbol)
	if errors.Is(err, ErrStoreUnavailable) {
		return RefreshResult{}, err
	}
	if err != nil {
		if ctx.Err() != nil {
			return RefreshResult{}, ctx.Err()
		}
		out := RefreshResult{Symbol: symbol, Reason: "synchronization timed out"}
		if wm, ok, werr := u.prices.GetWatermark(ctx, symbol); werr == nil && ok {
			out.LatestDate = datePtr(wm)
		}
		return out, nil
	}
	return toRefreshResult(res), nil
}

// ListStaleSymbols は asOf 時点で再取得が必要な登録済み銘柄をコード順に返します。
// 一度もデータを取得していない銘柄も含みます。
func (u *HistoryUsecase) ListStaleSymbols(ctx context.Context, asOf time.Time) ([]string, error) {
	codes, err := u.symbols.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list symbols: %w", ErrStoreUnavailable, err)
	}

	watermarks, err := u.prices.ListWatermarks(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("%w: list watermarks: %w", ErrStoreUnavailable, err)
	}

	today := entity.Day(asOf)
	stale := make([]string, 0, len(codes))
	for _, code := range codes {
		wm, ok := watermarks[code]
		if !ok || IsStale(wm, today) {
			stale = append(stale, code)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// RefreshAll は指定された銘柄（空なら登録済みの全銘柄）を順に更新します。
// 1つの銘柄で失敗しても処理を止めずにログに出力し、次の銘柄へ進みます。
// jobID が空の場合は新しいIDを発行します。
func (u *HistoryUsecase) RefreshAll(ctx context.Context, jobID string, symbols []string) (RefreshReport, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if len(symbols) == 0 {
		codes, err := u.symbols.ListCodes(ctx)
		if err != nil {
			return RefreshReport{JobID: jobID}, fmt.Errorf("%w: list symbols: %w", ErrStoreUnavailable, err)
		}
		symbols = codes
	}

	slog.Info("refresh-all started", "job_id", jobID, "symbols", len(symbols))
	var (
		mu     sync.Mutex
		report = RefreshReport{JobID: jobID, Total: len(symbols)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshAllConcurrency)
	for _, s := range symbols {
		g.Go(func() error {
			res, err := u.RefreshSymbol(gctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Error("failed to refresh symbol", "job_id", jobID, "symbol", s, "error", err)
				report.Failed++
				return nil
			}
			if res.Updated {
				report.Updated++
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("refresh-all finished", "job_id", jobID,
		"total", report.Total, "updated", report.Updated, "failed", report.Failed)
	return report, ctx.Err()
}

// shouldSync はリクエスト時に同期を走らせるかを判定します。
func (u *HistoryUsecase) shouldSync(symbol string, wm time.Time, hasWatermark, force bool) bool {
	if force {
		u.markAttempt(symbol)
		return true
	}
	if hasWatermark && !IsStale(wm, u.now()) {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	now := u.now()
	if last, ok := u.lastAttempt[symbol]; ok && u.cooldown > 0 && now.Sub(last) < u.cooldown {
		return false
	}
	u.lastAttempt[symbol] = now
	return true
}

func (u *HistoryUsecase) markAttempt(symbol string) {
	u.mu.Lock()
	u.lastAttempt[symbol] = u.now()
	u.mu.Unlock()
}

func (u *HistoryUsecase) syncWithTimeout(ctx context.Context, symbol string) (SyncResult, error) {
	if u.timeout <= 0 {
		return u.sync.Sync(ctx, symbol)
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	return u.sync.Sync(ctx, symbol)
}

func toRefreshResult(res SyncResult) RefreshResult {
	out := RefreshResult{Symbol: res.Symbol}
	if res.HasWatermark {
		out.LatestDate = datePtr(res.Watermark)
	}
	switch res.State {
	case StateUpToDate:
		out.Reason = "already up to date"
	case StateSynced:
		out.Updated = res.Inserted > 0
		if out.Updated {
			out.Reason = fmt.Sprintf("inserted %d new price points", res.Inserted)
		} else {
			out.Reason = "no new price points"
		}
	case StateFetchFailed:
		if res.HadWatermark {
			out.Reason = "no new data from provider, stored data kept"
		} else {
			out.Reason = "no data available for symbol"
		}
	}
	return out
}

func datePtr(t time.Time) *time.Time {
	d := entity.Day(t)
	return &d
}
