// Package usecase implements the business logic for symbol-related operations.
package usecase

import (
	"context"
	"log/slog"

	"marketdata_backend/internal/feature/symbollist/domain/entity"
)

// SymbolRepository abstracts the persistence layer for symbol (stock ticker) data.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	SeedSymbols(ctx context.Context, symbols []entity.Symbol) (int64, error)
}

// SymbolUsecase provides business logic for symbol operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns all active symbols from the repository.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	return u.repo.ListActive(ctx)
}

// RegisterUniverse registers the configured symbols that are not stored yet.
// Existing rows keep their display names.
func (u *SymbolUsecase) RegisterUniverse(ctx context.Context, symbols []entity.Symbol) (int64, error) {
	n, err := u.repo.SeedSymbols(ctx, symbols)
	if err != nil {
		return 0, err
	}
	slog.Info("symbol universe registered", "configured", len(symbols), "inserted", n)
	return n, nil
}
