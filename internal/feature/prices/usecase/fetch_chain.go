package usecase

import (
	"context"
	"log/slog"
	"time"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/shared/retry"
)

const (
	// recentWindow は最も安価で安定した取得形（直近5営業日）です。
	recentWindow = 5
	// longerWindow は直近ウィンドウが空だった場合に使う約1か月分です。
	longerWindow = 22
)

// HistorySource は上流APIから日足データを取得するリポジトリのインターフェイスです。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol string, q entity.HistoryQuery) ([]entity.PricePoint, error)
}

// FetchStatus は取得戦略チェーンの結果の種類です。
type FetchStatus int

const (
	// FetchOK はいずれかの戦略が1件以上のデータを返したことを示します。
	FetchOK FetchStatus = iota
	// FetchEmpty は少なくとも1つの戦略が応答したが、どれもデータを返さなかったことを示します。
	FetchEmpty
	// FetchError はすべての戦略がエラーで終わったことを示します。
	FetchError
)

func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchEmpty:
		return "empty"
	case FetchError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchOutcome は取得戦略チェーンの結果です。nil スライスでエラーと空を兼ねないよう種類を明示します。
type FetchOutcome struct {
	Status   FetchStatus
	Points   []entity.PricePoint
	Strategy string // データを返した戦略名（FetchOK の場合のみ）
	Err      error  // 最後に発生したエラー（FetchError の場合のみ）
}

// fetchStrategy はチェーン内の1つのリクエスト形です。
type fetchStrategy struct {
	name   string
	source HistorySource
	query  entity.HistoryQuery
}

// FetchChain は複数のリクエスト形を順に試し、最初に得られた空でない結果を返します。
type FetchChain struct {
	primary   HistorySource
	alternate HistorySource
	executor  *retry.Executor
	now       func() time.Time
}

// NewFetchChain は新しい FetchChain を生成します。alternate は nil でも構いません。
func NewFetchChain(primary, alternate HistorySource, executor *retry.Executor) *FetchChain {
	return &FetchChain{
		primary:   primary,
		alternate: alternate,
		executor:  executor,
		now:       time.Now,
	}
}

// strategies は since の有無に応じた戦略リストを組み立てます。
func (c *FetchChain) strategies(since *time.Time) []fetchStrategy {
	today := entity.Day(c.now())
	var ss []fetchStrategy
	if since != nil && !entity.Day(*since).After(today) {
		ss = append(ss, fetchStrategy{
			name:   "explicit_range",
			source: c.primary,
			query:  entity.HistoryQuery{Start: entity.Day(*since), End: today},
		})
	}
	ss = append(ss,
		fetchStrategy{name: "recent_window", source: c.primary, query: entity.HistoryQuery{Limit: recentWindow}},
		fetchStrategy{name: "longer_window", source: c.primary, query: entity.HistoryQuery{Limit: longerWindow}},
	)
	if c.alternate != nil {
		ss = append(ss, fetchStrategy{
			name:   "alternate_source",
			source: c.alternate,
			query:  entity.HistoryQuery{Limit: longerWindow},
		})
	}
	return ss
}

// FetchHistory は戦略を順に実行し、最初に空でない結果を返した時点で停止します。
// すべての戦略が尽きても呼び出し元にはエラーを返さず、FetchEmpty または FetchError を返します。
func (c *FetchChain) FetchHistory(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
	var (
		lastErr   error
		responded bool
	)
	for _, s := range c.strategies(since) {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		points, err := retry.Do(ctx, c.executor, func(ctx context.Context) ([]entity.PricePoint, error) {
			return s.source.FetchHistory(ctx, symbol, s.query)
		})
		if err != nil {
			slog.Warn("fetch strategy failed", "symbol", symbol, "strategy", s.name, "error", err)
			lastErr = err
			continue
		}
		responded = true
		if len(points) == 0 {
			slog.Info("fetch strategy returned no rows", "symbol", symbol, "strategy", s.name)
			continue
		}

		slog.Info("fetch strategy succeeded", "symbol", symbol, "strategy", s.name, "rows", len(points))
		return FetchOutcome{Status: FetchOK, Points: normalizePoints(symbol, points), Strategy: s.name}
	}

	if responded {
		return FetchOutcome{Status: FetchEmpty}
	}
	return FetchOutcome{Status: FetchError, Err: lastErr}
}

// normalizePoints は銘柄コードと日付を揃え、同一日の重複行を除去します。
func normalizePoints(symbol string, points []entity.PricePoint) []entity.PricePoint {
	seen := make(map[time.Time]struct{}, len(points))
	out := make([]entity.PricePoint, 0, len(points))
	for _, p := range points {
		p.Symbol = symbol
		p.Date = entity.Day(p.Date)
		if p.Volume < 0 {
			p.Volume = 0
		}
		if _, ok := seen[p.Date]; ok {
			continue
		}
		seen[p.Date] = struct{}{}
		out = append(out, p)
	}
	return out
}
