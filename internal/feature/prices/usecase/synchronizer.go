package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"marketdata_backend/internal/feature/prices/domain/entity"
)

// PriceRepository は価格データの永続化層を抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type PriceRepository interface {
	// GetWatermark は銘柄の最新保存日を返します。データがなければ ok=false です。
	GetWatermark(ctx context.Context, symbol string) (watermark time.Time, ok bool, err error)
	// ListWatermarks は複数銘柄の最新保存日をまとめて返します。データのない銘柄はマップに含まれません。
	ListWatermarks(ctx context.Context, symbols []string) (map[string]time.Time, error)
	// InsertIfAbsent は (symbol, date) が存在しない行だけを挿入し、挿入件数を返します。
	InsertIfAbsent(ctx context.Context, points []entity.PricePoint) (int64, error)
	// FindPricePoints は maxDate 以前（ゼロ値なら無制限）の行を新しい順に最大 limit 件返します。
	FindPricePoints(ctx context.Context, symbol string, limit int, maxDate time.Time) ([]entity.PricePoint, error)
}

// SymbolRepository は銘柄マスタの永続化層を抽象化します。
type SymbolRepository interface {
	// EnsureSymbol は銘柄が未登録なら表示名をコードとして登録します。既存行は変更しません。
	EnsureSymbol(ctx context.Context, code string) error
	// UpsertDisplayName は表示名を登録または上書きします（後勝ち）。
	UpsertDisplayName(ctx context.Context, code, name string) error
	// ListCodes は登録済みの有効な銘柄コードを返します。
	ListCodes(ctx context.Context) ([]string, error)
}

// HistoryFetcher は取得戦略チェーンの抽象です。
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, symbol string, since *time.Time) FetchOutcome
}

// SyncState は同期ステートマシンの状態です。
type SyncState int

const (
	StateUpToDate SyncState = iota
	StateNeedsCatchUp
	StateNeverFetched
	StateFetchFailed
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateUpToDate:
		return "up_to_date"
	case StateNeedsCatchUp:
		return "needs_catch_up"
	case StateNeverFetched:
		return "never_fetched"
	case StateFetchFailed:
		return "fetch_failed"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// SyncPlan は現在のウォーターマークから導かれる同期計画です。
type SyncPlan struct {
	State        SyncState
	Since        time.Time // StateNeedsCatchUp の場合の取得開始日
	Watermark    time.Time
	HasWatermark bool
}

// SyncResult は1回の同期の結果です。
type SyncResult struct {
	Symbol            string
	Initial           SyncState // 同期開始時の状態
	State             SyncState // 終了状態: StateUpToDate, StateSynced, StateFetchFailed
	Since             time.Time
	Inserted          int64
	PreviousWatermark time.Time
	HadWatermark      bool
	Watermark         time.Time
	HasWatermark      bool
	FetchStatus       FetchStatus
	Shared            bool // 他のリクエストと同一の同期結果を共有した場合 true
}

// Synchronizer はウォーターマークを基に不足分を取得し、冪等にストアへマージします。
type Synchronizer struct {
	prices  PriceRepository
	symbols SymbolRepository
	fetcher HistoryFetcher
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group
}

// NewSynchronizer は新しい Synchronizer を生成します。
// timeout は1回の同期に許す時間で、0以下なら呼び出し元のコンテキストにのみ従います。
func NewSynchronizer(prices PriceRepository, symbols SymbolRepository, fetcher HistoryFetcher, timeout time.Duration) *Synchronizer {
	return &Synchronizer{
		prices:  prices,
		symbols: symbols,
		fetcher: fetcher,
		timeout: timeout,
		now:     time.Now,
	}
}

// Plan はウォーターマークから状態を決定します。
func (s *Synchronizer) Plan(ctx context.Context, symbol string) (SyncPlan, error) {
	wm, ok, err := s.prices.GetWatermark(ctx, symbol)
	if err != nil {
		return SyncPlan{}, fmt.Errorf("%w: get watermark %s: %w", ErrStoreUnavailable, symbol, err)
	}
	if !ok {
		return SyncPlan{State: StateNeverFetched}, nil
	}

	wm = entity.Day(wm)
	today := entity.Day(s.now())
	plan := SyncPlan{Watermark: wm, HasWatermark: true}
	if !wm.Before(today) {
		plan.State = StateUpToDate
		return plan, nil
	}
	plan.State = StateNeedsCatchUp
	plan.Since = wm.AddDate(0, 0, 1)
	return plan, nil
}

// Sync は symbol の同期を実行します。同じ銘柄の同時同期は1回の上流呼び出しにまとめられます。
//
// 同期自体は呼び出し元のキャンセルから切り離され、timeout の範囲で最後まで実行されます。
// 呼び出し元は ctx が終了した時点で待機をやめ、ctx.Err() を受け取ります。
// 上流由来の失敗は StateFetchFailed として結果に含まれ、エラーとして返るのはストア障害とコンテキスト終了のみです。
func (s *Synchronizer) Sync(ctx context.Context, symbol string) (SyncResult, error) {
	ch := s.group.DoChan(symbol, func() (any, error) {
		syncCtx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			syncCtx, cancel = context.WithTimeout(syncCtx, s.timeout)
			defer cancel()
		}
		return s.run(syncCtx, symbol)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return SyncResult{}, res.Err
		}
		out := res.Val.(SyncResult)
		out.Shared = res.Shared
		return out, nil
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	}
}

func (s *Synchronizer) run(ctx context.Context, symbol string) (SyncResult, error) {
	plan, err := s.Plan(ctx, symbol)
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{
		Symbol:            symbol,
		Initial:           plan.State,
		Since:             plan.Since,
		PreviousWatermark: plan.Watermark,
		HadWatermark:      plan.HasWatermark,
		Watermark:         plan.Watermark,
		HasWatermark:      plan.HasWatermark,
	}
	if plan.State == StateUpToDate {
		res.State = StateUpToDate
		return res, nil
	}

	var since *time.Time
	if plan.State == StateNeedsCatchUp {
		since = &plan.Since
	}
	out := s.fetcher.FetchHistory(ctx, symbol, since)
	res.FetchStatus = out.Status
	if out.Status != FetchOK {
		// 上流の失敗はここで吸収し、呼び出し元は保存済みデータで応答する
		slog.Warn("synchronization fetched no data",
			"symbol", symbol, "state", plan.State.String(), "outcome", out.Status.String(), "error", out.Err)
		res.State = StateFetchFailed
		return res, nil
	}

	inserted, err := s.prices.InsertIfAbsent(ctx, out.Points)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: insert prices %s: %w", ErrStoreUnavailable, symbol, err)
	}
	if s.symbols != nil {
		if err := s.symbols.EnsureSymbol(ctx, symbol); err != nil {
			return SyncResult{}, fmt.Errorf("%w: ensure symbol %s: %w", ErrStoreUnavailable, symbol, err)
		}
	}

	wm, ok, err := s.prices.GetWatermark(ctx, symbol)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: get watermark %s: %w", ErrStoreUnavailable, symbol, err)
	}
	res.State = StateSynced
	res.Inserted = inserted
	res.Watermark = entity.Day(wm)
	res.HasWatermark = ok

	slog.Info("synchronization complete",
		"symbol", symbol, "from", plan.State.String(), "strategy", out.Strategy,
		"fetched", len(out.Points), "inserted", inserted, "watermark", res.Watermark.Format(entity.DateLayout))
	return res, nil
}
