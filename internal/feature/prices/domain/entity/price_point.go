// Package entity defines the domain models for the prices feature.
package entity

import "time"

// PricePoint represents one daily OHLCV row for a stock symbol.
// At most one PricePoint exists per (Symbol, Date); once stored it is never overwritten.
type PricePoint struct {
	Symbol string    // Stock ticker symbol (e.g., "AAPL")
	Date   time.Time // Trading day, normalised to UTC midnight
	Open   float64   // Opening price
	High   float64   // Highest price of the day
	Low    float64   // Lowest price of the day
	Close  float64   // Closing price
	Volume int64     // Trading volume; 0 when the provider reported none
}

// History is the stored price history served for a symbol, newest first.
type History struct {
	Symbol string
	Points []PricePoint
}

// LiveQuote is the last known intraday snapshot for a symbol.
type LiveQuote struct {
	Symbol        string
	Name          string // Display name reported by the provider, may be empty
	CapturedAt    time.Time // When this process fetched the snapshot; drives cache expiry
	QuotedAt      time.Time // Provider's timestamp of the last trade, zero if not reported
	CurrentPrice  float64
	DayHigh       float64
	DayLow        float64
	MarketCap     float64 // 0 when the provider does not report it
	PreviousClose float64
}

// HistoryQuery describes one upstream request shape for daily history.
// Either Start is set (explicit range up to End) or Limit asks for the most recent N trading days.
type HistoryQuery struct {
	Start time.Time // Inclusive lower bound; zero means "use Limit"
	End   time.Time // Inclusive upper bound; zero means today
	Limit int       // Number of most recent rows when Start is zero
}
