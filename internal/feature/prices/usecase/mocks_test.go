package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/shared/retry"
)

// ErrUpstream はモックの上流APIが返すセンチネルエラーです。
var ErrUpstream = errors.New("upstream error")

// ErrDB はモックのストアが返すセンチネルエラーです。
var ErrDB = errors.New("database error")

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// rows は from から to までの平日の行を生成します。
func rows(symbol string, from, to time.Time) []entity.PricePoint {
	var out []entity.PricePoint
	for d := entity.Day(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if !entity.IsTradingDay(d) {
			continue
		}
		out = append(out, entity.PricePoint{
			Symbol: symbol, Date: d, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100,
		})
	}
	return out
}

func noBackoff() *retry.Executor {
	return retry.NewExecutor(nil, 3, 0)
}

// mockHistorySource はHistorySourceインターフェースのモック実装です。
type mockHistorySource struct {
	FetchHistoryFunc func(ctx context.Context, symbol string, q entity.HistoryQuery) ([]entity.PricePoint, error)

	mu      sync.Mutex
	Queries []entity.HistoryQuery
}

func (m *mockHistorySource) FetchHistory(ctx context.Context, symbol string, q entity.HistoryQuery) ([]entity.PricePoint, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, q)
	m.mu.Unlock()
	if m.FetchHistoryFunc != nil {
		return m.FetchHistoryFunc(ctx, symbol, q)
	}
	return nil, errors.New("FetchHistoryFunc is not implemented")
}

func (m *mockHistorySource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// mockFetcher はHistoryFetcherインターフェースのモック実装です。
type mockFetcher struct {
	FetchFunc func(ctx context.Context, symbol string, since *time.Time) FetchOutcome

	mu     sync.Mutex
	Calls  int
	Sinces []*time.Time
}

func (m *mockFetcher) FetchHistory(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
	m.mu.Lock()
	m.Calls++
	m.Sinces = append(m.Sinces, since)
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, symbol, since)
	}
	return FetchOutcome{Status: FetchError, Err: errors.New("FetchFunc is not implemented")}
}

func (m *mockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// memPriceRepo はPriceRepositoryのインメモリ実装です。(symbol, date) が既に存在する行は無視します。
type memPriceRepo struct {
	mu   sync.Mutex
	data map[string]map[time.Time]entity.PricePoint

	WatermarkErr error
	InsertErr    map[string]error // 銘柄ごとの挿入エラー
	FindErr      error

	FindLimits     []int
	WatermarkCalls int
	ListCalls      int
}

func newMemPriceRepo(seed ...entity.PricePoint) *memPriceRepo {
	r := &memPriceRepo{data: map[string]map[time.Time]entity.PricePoint{}}
	_, _ = r.InsertIfAbsent(context.Background(), seed)
	return r
}

func (r *memPriceRepo) GetWatermark(ctx context.Context, symbol string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WatermarkCalls++
	if r.WatermarkErr != nil {
		return time.Time{}, false, r.WatermarkErr
	}
	var (
		wm time.Time
		ok bool
	)
	for d := range r.data[symbol] {
		if !ok || d.After(wm) {
			wm, ok = d, true
		}
	}
	return wm, ok, nil
}

func (r *memPriceRepo) ListWatermarks(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCalls++
	if r.WatermarkErr != nil {
		return nil, r.WatermarkErr
	}
	out := make(map[string]time.Time, len(symbols))
	for _, s := range symbols {
		for d := range r.data[s] {
			if wm, ok := out[s]; !ok || d.After(wm) {
				out[s] = d
			}
		}
	}
	return out, nil
}

func (r *memPriceRepo) InsertIfAbsent(ctx context.Context, points []entity.PricePoint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range points {
		if err := r.InsertErr[p.Symbol]; err != nil {
			return 0, err
		}
	}
	for _, p := range points {
		d := entity.Day(p.Date)
		if r.data[p.Symbol] == nil {
			r.data[p.Symbol] = map[time.Time]entity.PricePoint{}
		}
		if _, exists := r.data[p.Symbol][d]; exists {
			continue
		}
		p.Date = d
		r.data[p.Symbol][d] = p
		n++
	}
	return n, nil
}

func (r *memPriceRepo) FindPricePoints(ctx context.Context, symbol string, limit int, maxDate time.Time) ([]entity.PricePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FindLimits = append(r.FindLimits, limit)
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	out := []entity.PricePoint{}
	for d, p := range r.data[symbol] {
		if !maxDate.IsZero() && d.After(maxDate) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPriceRepo) Count(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data[symbol])
}

// memSymbolRepo はSymbolRepositoryのインメモリ実装です。
type memSymbolRepo struct {
	mu    sync.Mutex
	codes []string
	names map[string]string

	EnsureErr error
	ListErr   error
}

func newMemSymbolRepo(codes ...string) *memSymbolRepo {
	r := &memSymbolRepo{names: map[string]string{}}
	for _, c := range codes {
		r.codes = append(r.codes, c)
		r.names[c] = c
	}
	return r
}

func (r *memSymbolRepo) EnsureSymbol(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EnsureErr != nil {
		return r.EnsureErr
	}
	if _, ok := r.names[code]; !ok {
		r.codes = append(r.codes, code)
		r.names[code] = code
	}
	return nil
}

func (r *memSymbolRepo) UpsertDisplayName(ctx context.Context, code, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[code]; !ok {
		r.codes = append(r.codes, code)
	}
	r.names[code] = name
	return nil
}

func (r *memSymbolRepo) ListCodes(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	return append([]string(nil), r.codes...), nil
}

func (r *memSymbolRepo) Name(code string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names[code]
}

// mockQuoteSource はQuoteSourceインターフェースのモック実装です。
type mockQuoteSource struct {
	GetQuoteFunc func(ctx context.Context, symbol string) (entity.LiveQuote, error)

	mu    sync.Mutex
	Calls int
}

func (m *mockQuoteSource) GetQuote(ctx context.Context, symbol string) (entity.LiveQuote, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.GetQuoteFunc != nil {
		return m.GetQuoteFunc(ctx, symbol)
	}
	return entity.LiveQuote{}, errors.New("GetQuoteFunc is not implemented")
}

// memQuoteCache は有効期限を持たないQuoteCacheの実装です。
type memQuoteCache struct {
	mu      sync.Mutex
	entries map[string]entity.LiveQuote
	Puts    int
}

func newMemQuoteCache() *memQuoteCache {
	return &memQuoteCache{entries: map[string]entity.LiveQuote{}}
}

func (c *memQuoteCache) Get(symbol string) (entity.LiveQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.entries[symbol]
	return q, ok
}

func (c *memQuoteCache) Put(symbol string, q entity.LiveQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Puts++
	c.entries[symbol] = q
}
