package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata_backend/internal/feature/prices/domain/entity"
)

// testClock はテスト中に進められる時計です。
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type historyFixture struct {
	uc      *HistoryUsecase
	repo    *memPriceRepo
	symbols *memSymbolRepo
	fetcher *mockFetcher
	clock   *testClock
}

func newHistoryFixture(now time.Time, fetch func(ctx context.Context, symbol string, since *time.Time) FetchOutcome, seed ...entity.PricePoint) *historyFixture {
	f := &historyFixture{
		repo:    newMemPriceRepo(seed...),
		symbols: newMemSymbolRepo(),
		fetcher: &mockFetcher{FetchFunc: fetch},
		clock:   &testClock{t: now},
	}
	s := NewSynchronizer(f.repo, f.symbols, f.fetcher, time.Second)
	s.now = f.clock.Now
	f.uc = NewHistoryUsecase(f.repo, f.symbols, s, time.Second, 10*time.Minute)
	f.uc.now = f.clock.Now
	return f
}

// TestHistoryUsecase_GetHistory_FirstRequestThenCached は初回リクエストで同期し、同じ日の2回目は上流を呼ばないことを検証します。
func TestHistoryUsecase_GetHistory_FirstRequestThenCached(t *testing.T) {
	t.Parallel()

	today := date(2024, 3, 6)
	f := newHistoryFixture(today.Add(14*time.Hour), func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
		return okOutcome(rows(symbol, date(2024, 2, 28), today))
	})

	h, err := f.uc.GetHistory(context.Background(), "acme", false, 0)
	require.NoError(t, err)
	assert.Equal(t, "ACME", h.Symbol)
	require.Len(t, h.Points, 6)
	assert.Equal(t, today, h.Points[0].Date, "newest first")
	assert.Equal(t, date(2024, 2, 28), h.Points[5].Date)
	assert.Equal(t, 1, f.fetcher.CallCount())

	f.clock.Advance(3 * time.Hour)
	h2, err := f.uc.GetHistory(context.Background(), "ACME", false, 0)
	require.NoError(t, err)
	assert.Equal(t, h.Points, h2.Points)
	assert.Equal(t, 1, f.fetcher.CallCount(), "fresh data must not trigger another fetch")

	codes, _ := f.symbols.ListCodes(context.Background())
	assert.Equal(t, []string{"ACME"}, codes)
}

func TestHistoryUsecase_GetHistory(t *testing.T) {
	t.Parallel()

	friday := date(2024, 3, 1)
	saturday := date(2024, 3, 2)
	monday := date(2024, 3, 4)
	stored := rows("ACME", date(2024, 2, 26), friday)

	tests := []struct {
		name        string
		now         time.Time
		seed        []entity.PricePoint
		fetch       func(ctx context.Context, symbol string, since *time.Time) FetchOutcome
		symbol      string
		force       bool
		limit       int
		wantErr     error
		wantLen     int
		wantNewest  time.Time
		wantFetches int
	}{
		{
			name:        "invalid symbol",
			now:         monday,
			symbol:      "AC ME",
			wantErr:     ErrInvalidSymbol,
			wantFetches: 0,
		},
		{
			name:   "unknown symbol with no upstream data",
			now:    monday,
			symbol: "NOPE",
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return FetchOutcome{Status: FetchEmpty}
			},
			wantErr:     ErrSymbolNotFound,
			wantFetches: 1,
		},
		{
			name:   "upstream failure on unknown symbol is not found",
			now:    monday,
			symbol: "NOPE",
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return FetchOutcome{Status: FetchError, Err: ErrUpstream}
			},
			wantErr:     ErrSymbolNotFound,
			wantFetches: 1,
		},
		{
			name:   "stale data served when refresh fails",
			now:    monday,
			seed:   stored,
			symbol: "ACME",
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return FetchOutcome{Status: FetchError, Err: ErrUpstream}
			},
			wantLen:     5,
			wantNewest:  friday,
			wantFetches: 1,
		},
		{
			name:   "stale data caught up on a trading day",
			now:    monday.Add(20 * time.Hour),
			seed:   stored,
			symbol: "ACME",
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return okOutcome(rows(symbol, *since, monday))
			},
			wantLen:     6,
			wantNewest:  monday,
			wantFetches: 1,
		},
		{
			name:        "weekend does not refresh friday data",
			now:         saturday.Add(12 * time.Hour),
			seed:        stored,
			symbol:      "ACME",
			wantLen:     5,
			wantNewest:  friday,
			wantFetches: 0,
		},
		{
			name:   "force refresh fetches even on a weekend",
			now:    saturday,
			seed:   stored,
			symbol: "ACME",
			force:  true,
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return FetchOutcome{Status: FetchEmpty}
			},
			wantLen:     5,
			wantNewest:  friday,
			wantFetches: 1,
		},
		{
			name:        "force refresh on up to date data is a no-op",
			now:         friday.Add(23 * time.Hour),
			seed:        stored,
			symbol:      "ACME",
			force:       true,
			wantLen:     5,
			wantNewest:  friday,
			wantFetches: 0,
		},
		{
			name:        "limit applied",
			now:         saturday,
			seed:        stored,
			symbol:      "ACME",
			limit:       2,
			wantLen:     2,
			wantNewest:  friday,
			wantFetches: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newHistoryFixture(tt.now, tt.fetch, tt.seed...)
			h, err := f.uc.GetHistory(context.Background(), tt.symbol, tt.force, tt.limit)

			assert.Equal(t, tt.wantFetches, f.fetcher.CallCount())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, h.Points, tt.wantLen)
			assert.Equal(t, tt.wantNewest, h.Points[0].Date)
		})
	}
}

// TestHistoryUsecase_GetHistory_Timeout は同期がタイムアウトした場合の応答を検証します。
func TestHistoryUsecase_GetHistory_Timeout(t *testing.T) {
	t.Parallel()

	monday := date(2024, 3, 4)

	tests := []struct {
		name    string
		seed    []entity.PricePoint
		wantErr error
		wantLen int
	}{
		{
			name:    "nothing stored yet",
			wantErr: ErrTemporarilyUnavailable,
		},
		{
			name:    "stored data is served",
			seed:    rows("ACME", date(2024, 2, 26), date(2024, 3, 1)),
			wantLen: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			release := make(chan struct{})
			defer close(release)

			f := newHistoryFixture(monday, func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				select {
				case <-release:
				case <-ctx.Done():
				}
				return FetchOutcome{Status: FetchError, Err: ctx.Err()}
			}, tt.seed...)
			f.uc.timeout = 30 * time.Millisecond

			h, err := f.uc.GetHistory(context.Background(), "ACME", false, 0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, h.Points, tt.wantLen)
		})
	}
}

// TestHistoryUsecase_GetHistory_Cooldown はクールダウン中は再同期しないが、forceRefresh は無視することを検証します。
func TestHistoryUsecase_GetHistory_Cooldown(t *testing.T) {
	t.Parallel()

	monday := date(2024, 3, 4)
	f := newHistoryFixture(monday.Add(15*time.Hour), func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
		return FetchOutcome{Status: FetchEmpty}
	}, rows("ACME", date(2024, 2, 26), date(2024, 3, 1))...)
	ctx := context.Background()

	_, err := f.uc.GetHistory(ctx, "ACME", false, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.CallCount())

	f.clock.Advance(5 * time.Minute)
	_, err = f.uc.GetHistory(ctx, "ACME", false, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fetcher.CallCount(), "retry suppressed during cooldown")

	_, err = f.uc.GetHistory(ctx, "ACME", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, f.fetcher.CallCount(), "force refresh ignores cooldown")

	f.clock.Advance(11 * time.Minute)
	_, err = f.uc.GetHistory(ctx, "ACME", false, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, f.fetcher.CallCount(), "retried after cooldown")
}

func TestHistoryUsecase_GetHistory_StoreErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		repo *memPriceRepo
	}{
		{name: "watermark lookup fails", repo: &memPriceRepo{WatermarkErr: ErrDB}},
		{name: "read fails", repo: &memPriceRepo{data: map[string]map[time.Time]entity.PricePoint{}, FindErr: ErrDB}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			now := date(2024, 3, 2) // Saturday: no refresh attempted
			s := NewSynchronizer(tt.repo, nil, &mockFetcher{}, time.Second)
			s.now = clock(now)
			uc := NewHistoryUsecase(tt.repo, newMemSymbolRepo(), s, time.Second, 0)
			uc.now = clock(now)
			if tt.repo.data != nil {
				tt.repo.data["ACME"] = map[time.Time]entity.PricePoint{date(2024, 3, 1): {Symbol: "ACME", Date: date(2024, 3, 1)}}
			}

			_, err := uc.GetHistory(context.Background(), "ACME", false, 0)

			assert.ErrorIs(t, err, ErrStoreUnavailable)
			assert.ErrorIs(t, err, ErrDB)
		})
	}
}

func TestHistoryUsecase_RefreshSymbol(t *testing.T) {
	t.Parallel()

	monday := date(2024, 3, 4)
	stored := rows("ACME", date(2024, 2, 26), date(2024, 3, 1))

	tests := []struct {
		name        string
		seed        []entity.PricePoint
		fetch       func(ctx context.Context, symbol string, since *time.Time) FetchOutcome
		wantUpdated bool
		wantReason  string
		wantLatest  *time.Time
		wantErr     error
	}{
		{
			name: "new rows inserted",
			seed: stored,
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return okOutcome(rows(symbol, *since, monday))
			},
			wantUpdated: true,
			wantReason:  "inserted 1 new price points",
			wantLatest:  ptr(monday),
		},
		{
			name:       "already up to date",
			seed:       rows("ACME", date(2024, 2, 26), monday),
			wantReason: "already up to date",
			wantLatest: ptr(monday),
		},
		{
			name: "provider has nothing new",
			seed: stored,
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return FetchOutcome{Status: FetchEmpty}
			},
			wantReason: "no new data from provider, stored data kept",
			wantLatest: ptr(date(2024, 3, 1)),
		},
		{
			name: "provider returns only known rows",
			seed: stored,
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return okOutcome(stored)
			},
			wantReason: "no new price points",
			wantLatest: ptr(date(2024, 3, 1)),
		},
		{
			name: "unknown symbol",
			fetch: func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
				return FetchOutcome{Status: FetchError, Err: ErrUpstream}
			},
			wantReason: "no data available for symbol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newHistoryFixture(monday.Add(21*time.Hour), tt.fetch, tt.seed...)
			res, err := f.uc.RefreshSymbol(context.Background(), "acme")

			require.NoError(t, err)
			assert.Equal(t, "ACME", res.Symbol)
			assert.Equal(t, tt.wantUpdated, res.Updated)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, tt.wantLatest, res.LatestDate)
		})
	}
}

func TestHistoryUsecase_RefreshSymbol_InvalidSymbol(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(date(2024, 3, 4), nil)
	_, err := f.uc.RefreshSymbol(context.Background(), "")

	assert.ErrorIs(t, err, ErrInvalidSymbol)
	assert.Equal(t, 0, f.fetcher.CallCount())
}

func TestHistoryUsecase_ListStaleSymbols(t *testing.T) {
	t.Parallel()

	seed := append(rows("AAPL", date(2024, 2, 26), date(2024, 3, 4)), rows("MSFT", date(2024, 2, 26), date(2024, 3, 1))...)

	tests := []struct {
		name string
		asOf time.Time
		want []string
	}{
		{name: "monday", asOf: date(2024, 3, 4).Add(9 * time.Hour), want: []string{"MSFT", "NEWCO"}},
		{name: "tuesday", asOf: date(2024, 3, 5), want: []string{"AAPL", "MSFT", "NEWCO"}},
		{name: "saturday only lists never fetched", asOf: date(2024, 3, 2), want: []string{"NEWCO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newHistoryFixture(tt.asOf, nil, seed...)
			f.symbols = newMemSymbolRepo("NEWCO", "MSFT", "AAPL")
			f.uc.symbols = f.symbols

			got, err := f.uc.ListStaleSymbols(context.Background(), tt.asOf)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, f.fetcher.CallCount(), "listing must not call upstream")
			assert.Equal(t, 1, f.repo.ListCalls, "watermarks are read in one query")
			assert.Equal(t, 0, f.repo.WatermarkCalls)
		})
	}
}

func TestHistoryUsecase_ListStaleSymbols_StoreError(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(date(2024, 3, 4), nil)
	f.symbols.ListErr = ErrDB

	_, err := f.uc.ListStaleSymbols(context.Background(), date(2024, 3, 4))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestHistoryUsecase_ListStaleSymbols_WatermarkError(t *testing.T) {
	t.Parallel()

	f := newHistoryFixture(date(2024, 3, 4), nil)
	f.symbols = newMemSymbolRepo("AAPL")
	f.uc.symbols = f.symbols
	f.repo.WatermarkErr = ErrDB

	_, err := f.uc.ListStaleSymbols(context.Background(), date(2024, 3, 4))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, ErrDB)
}

// TestHistoryUsecase_GetHistory_LimitIsCapped は0以下や上限超えの件数指定が MaxHistoryLimit に丸められることを検証します。
func TestHistoryUsecase_GetHistory_LimitIsCapped(t *testing.T) {
	t.Parallel()

	monday := date(2024, 3, 4)
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero", limit: 0, want: MaxHistoryLimit},
		{name: "negative", limit: -1, want: MaxHistoryLimit},
		{name: "above maximum", limit: MaxHistoryLimit + 1, want: MaxHistoryLimit},
		{name: "within range", limit: 3, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newHistoryFixture(monday.Add(10*time.Hour), nil, rows("ACME", date(2024, 2, 26), monday)...)

			_, err := f.uc.GetHistory(context.Background(), "ACME", false, tt.limit)

			require.NoError(t, err)
			assert.Equal(t, []int{tt.want}, f.repo.FindLimits)
		})
	}
}

func TestHistoryUsecase_RefreshAll(t *testing.T) {
	t.Parallel()

	monday := date(2024, 3, 4)
	seed := append(rows("AAPL", date(2024, 2, 26), monday), rows("MSFT", date(2024, 2, 26), date(2024, 3, 1))...)

	f := newHistoryFixture(monday.Add(22*time.Hour), func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
		return okOutcome(rows(symbol, date(2024, 3, 1), monday))
	}, seed...)
	f.symbols = newMemSymbolRepo("AAPL", "MSFT", "BROKEN", "NEWCO")
	f.uc.symbols = f.symbols
	f.repo.InsertErr = map[string]error{"BROKEN": ErrDB}

	report, err := f.uc.RefreshAll(context.Background(), "", nil)

	require.NoError(t, err)
	assert.NotEmpty(t, report.JobID)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Updated, "MSFT and NEWCO gain rows")
	assert.Equal(t, 1, report.Failed, "BROKEN fails but does not stop the run")
	assert.Equal(t, 2, f.repo.Count("NEWCO"))
}

func TestHistoryUsecase_RefreshAll_ExplicitSymbols(t *testing.T) {
	t.Parallel()

	monday := date(2024, 3, 4)
	f := newHistoryFixture(monday, func(ctx context.Context, symbol string, since *time.Time) FetchOutcome {
		return okOutcome(rows(symbol, monday, monday))
	})
	f.symbols.ListErr = errors.New("must not be called")

	report, err := f.uc.RefreshAll(context.Background(), "job-1", []string{"AAPL"})

	require.NoError(t, err)
	assert.Equal(t, "job-1", report.JobID)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Updated)
}
