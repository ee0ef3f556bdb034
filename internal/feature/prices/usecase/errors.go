// Package usecase は価格履歴の同期とライブ株価提供のビジネスロジックを実装します。
package usecase

import "errors"

var (
	// ErrInvalidSymbol is returned when a ticker symbol is empty or contains unsupported characters.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrSymbolNotFound is returned when no price data has ever been obtained for a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrTemporarilyUnavailable is returned when synchronization timed out and nothing is stored yet.
	ErrTemporarilyUnavailable = errors.New("price data temporarily unavailable")

	// ErrStoreUnavailable wraps failures of the durable store. It is never swallowed.
	ErrStoreUnavailable = errors.New("price store unavailable")
)
