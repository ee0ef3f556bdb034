// Package dto defines data transfer objects for the prices HTTP API.
package dto

// PricePointResponse は日足1行のレスポンスDTOです。
type PricePointResponse struct {
	Date   string  `json:"date"`   // 日付 (YYYY-MM-DD)
	Open   float64 `json:"open"`   // 始値
	High   float64 `json:"high"`   // 高値
	Low    float64 `json:"low"`    // 安値
	Close  float64 `json:"close"`  // 終値
	Volume int64   `json:"volume"` // 出来高
}

// HistoryResponse は価格履歴のレスポンスDTOです。prices は新しい順です。
type HistoryResponse struct {
	Symbol string               `json:"symbol"`
	Prices []PricePointResponse `json:"prices"`
	Live   *QuoteResponse       `json:"live,omitempty"`
}

// QuoteResponse はライブ株価のレスポンスDTOです。
type QuoteResponse struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	CapturedAt    string  `json:"captured_at"`
	QuotedAt      string  `json:"quoted_at,omitempty"`
	CurrentPrice  float64 `json:"current_price"`
	DayHigh       float64 `json:"day_high"`
	DayLow        float64 `json:"day_low"`
	MarketCap     float64 `json:"market_cap"`
	PreviousClose float64 `json:"previous_close"`
}

// RefreshResponse は手動更新の結果です。
type RefreshResponse struct {
	Symbol     string  `json:"symbol"`
	Updated    bool    `json:"updated"`
	Reason     string  `json:"reason"`
	LatestDate *string `json:"latest_date"`
}

// StaleResponse は再取得が必要な銘柄の一覧です。
type StaleResponse struct {
	AsOf    string   `json:"as_of"`
	Symbols []string `json:"symbols"`
}

// RefreshAllResponse は一括更新ジョブの受付結果です。
type RefreshAllResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
}

// ErrorResponse はエラーレスポンスの共通形式です。
type ErrorResponse struct {
	Error string `json:"error"`
}
