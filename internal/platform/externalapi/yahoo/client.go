package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/feature/prices/usecase"
	"marketdata_backend/internal/platform/externalapi/yahoo/dto"
)

// ChartClient はYahoo Financeのチャートエンドポイントから日足を取得するHistorySource実装です。
type ChartClient struct {
	cfg    Config
	client *http.Client
}

var _ usecase.HistorySource = (*ChartClient)(nil)

// NewChartClient は新しい ChartClient を生成します。
func NewChartClient(cfg Config, client *http.Client) *ChartClient {
	return &ChartClient{cfg: cfg, client: client}
}

// FetchHistory は日足データを取得します。終値が欠損している日は除外し、欠損した出来高は0とします。
func (c *ChartClient) FetchHistory(ctx context.Context, symbol string, q entity.HistoryQuery) ([]entity.PricePoint, error) {
	v := url.Values{}
	v.Set("interval", "1d")
	if !q.Start.IsZero() {
		end := q.End
		if end.IsZero() {
			end = time.Now()
		}
		v.Set("period1", strconv.FormatInt(entity.Day(q.Start).Unix(), 10))
		v.Set("period2", strconv.FormatInt(entity.Day(end).AddDate(0, 0, 1).Unix(), 10))
	} else {
		v.Set("range", rangeFor(q.Limit))
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(symbol), v.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode == http.StatusNotFound {
		return []entity.PricePoint{}, nil
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("yahoo http %d", res.StatusCode)
	}

	var body dto.ChartResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}
	if e := body.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return []entity.PricePoint{}, nil
		}
		return nil, fmt.Errorf("yahoo: %s: %s", e.Code, e.Description)
	}

	points := []entity.PricePoint{}
	for _, r := range body.Chart.Result {
		if len(r.Indicators.Quote) == 0 {
			continue
		}
		quote := r.Indicators.Quote[0]
		for i, ts := range r.Timestamp {
			cl := at(quote.Close, i)
			if cl == nil {
				continue
			}
			p := entity.PricePoint{
				Symbol: symbol,
				Date:   entity.Day(time.Unix(ts, 0)),
				Open:   orZero(at(quote.Open, i)),
				High:   orZero(at(quote.High, i)),
				Low:    orZero(at(quote.Low, i)),
				Close:  *cl,
			}
			if vol := at(quote.Volume, i); vol != nil && *vol > 0 {
				p.Volume = *vol
			}
			points = append(points, p)
		}
	}
	return points, nil
}

// rangeFor は取得件数（営業日数）をYahooのrangeパラメータに変換します。
func rangeFor(limit int) string {
	switch {
	case limit <= 0:
		return "1y"
	case limit <= 5:
		return "5d"
	case limit <= 22:
		return "1mo"
	case limit <= 66:
		return "3mo"
	default:
		return "1y"
	}
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
