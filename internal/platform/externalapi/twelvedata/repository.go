package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/feature/prices/usecase"
	"marketdata_backend/internal/platform/externalapi/twelvedata/dto"
)

const (
	dailyInterval = "1day"
	// maxOutputSize はTwelve Dataが1回のリクエストで返す最大件数です。
	maxOutputSize = 5000
)

// TwelveDataMarket はTwelve Data外部APIから日足データとライブ株価を取得する実装です。
type TwelveDataMarket struct {
	cfg    Config
	client *http.Client
}

// TwelveDataMarketがHistorySourceとQuoteSourceを実装していることをコンパイル時に検証します。
var (
	_ usecase.HistorySource = (*TwelveDataMarket)(nil)
	_ usecase.QuoteSource   = (*TwelveDataMarket)(nil)
)

// NewTwelveDataMarket は指定された設定とHTTPクライアントでTwelveDataMarketの新しいインスタンスを生成します。
func NewTwelveDataMarket(cfg Config, client *http.Client) *TwelveDataMarket {
	return &TwelveDataMarket{cfg: cfg, client: client}
}

// FetchHistory はTwelve Data APIから日足データを取得します。
// q.Start が指定されていれば期間指定、そうでなければ直近 q.Limit 件を要求します。
// 指定期間にデータが無い場合はエラーではなく空スライスを返します。
func (t *TwelveDataMarket) FetchHistory(ctx context.Context, symbol string, q entity.HistoryQuery) ([]entity.PricePoint, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("interval", dailyInterval)
	if !q.Start.IsZero() {
		v.Set("start_date", q.Start.UTC().Format(entity.DateLayout))
		if !q.End.IsZero() {
			// 日足では end_date の当日が含まれないため1日進める
			v.Set("end_date", q.End.UTC().AddDate(0, 0, 1).Format(entity.DateLayout))
		}
		v.Set("outputsize", strconv.Itoa(maxOutputSize))
	} else {
		size := q.Limit
		if size <= 0 || size > maxOutputSize {
			size = maxOutputSize
		}
		v.Set("outputsize", strconv.Itoa(size))
	}

	var body dto.TimeSeriesResponse
	if err := t.get(ctx, "time_series", v, &body); err != nil {
		return nil, err
	}
	if body.Status == "error" {
		if isNoData(body.Message) {
			return []entity.PricePoint{}, nil
		}
		return nil, fmt.Errorf("twelvedata: %s", body.Message)
	}

	points := make([]entity.PricePoint, 0, len(body.Values))
	for _, row := range body.Values {
		tm, err := parseDatetime(row.Datetime)
		if err != nil {
			return nil, err
		}
		o, err := strconv.ParseFloat(row.Open, 64)
		if err != nil {
			return nil, fmt.Errorf("parse open %q: %w", row.Open, err)
		}
		h, err := strconv.ParseFloat(row.High, 64)
		if err != nil {
			return nil, fmt.Errorf("parse high %q: %w", row.High, err)
		}
		l, err := strconv.ParseFloat(row.Low, 64)
		if err != nil {
			return nil, fmt.Errorf("parse low %q: %w", row.Low, err)
		}
		c, err := strconv.ParseFloat(row.Close, 64)
		if err != nil {
			return nil, fmt.Errorf("parse close %q: %w", row.Close, err)
		}
		vol, err := parseVolume(row.Volume)
		if err != nil {
			return nil, err
		}

		points = append(points, entity.PricePoint{
			Symbol: symbol,
			Date:   entity.Day(tm),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: vol,
		})
	}
	return points, nil
}

// GetQuote はTwelve Data APIから現在の株価スナップショットを取得します。
// 時価総額はこのエンドポイントでは提供されないため0のままです。
func (t *TwelveDataMarket) GetQuote(ctx context.Context, symbol string) (entity.LiveQuote, error) {
	v := url.Values{}
	v.Set("symbol", symbol)

	var body dto.QuoteResponse
	if err := t.get(ctx, "quote", v, &body); err != nil {
		return entity.LiveQuote{}, err
	}
	if body.Status == "error" {
		return entity.LiveQuote{}, fmt.Errorf("twelvedata: %s", body.Message)
	}

	price, err := strconv.ParseFloat(body.Close, 64)
	if err != nil {
		return entity.LiveQuote{}, fmt.Errorf("parse close %q: %w", body.Close, err)
	}
	q := entity.LiveQuote{
		Symbol:        symbol,
		Name:          body.Name,
		CurrentPrice:  price,
		DayHigh:       parseOptionalFloat(body.High),
		DayLow:        parseOptionalFloat(body.Low),
		PreviousClose: parseOptionalFloat(body.PreviousClose),
	}
	if body.Timestamp > 0 {
		q.QuotedAt = time.Unix(body.Timestamp, 0).UTC()
	}
	return q, nil
}

// get は endpoint にリクエストを送り、JSONレスポンスを out にデコードします。
func (t *TwelveDataMarket) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	q.Set("apikey", t.cfg.TwelveDataAPIKey)
	u := fmt.Sprintf("%s/%s?%s", strings.TrimRight(t.cfg.BaseURL, "/"), endpoint, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return fmt.Errorf("twelvedata http %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func parseDatetime(s string) (time.Time, error) {
	tm, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return tm, nil
	}
	tm, err = time.Parse(entity.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return tm, nil
}

// parseVolume は出来高を整数に変換します。欠損（空文字やNaN）は0として扱います。
func parseVolume(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse volume %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, nil
	}
	return int64(f), nil
}

func parseOptionalFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

// isNoData はTwelve Dataが「指定期間にデータが無い」ことを示すエラーメッセージか判定します。
func isNoData(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "no data is available")
}
