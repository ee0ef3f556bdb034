package di

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	symboladapters "marketdata_backend/internal/feature/symbollist/adapters"
	symbolusecase "marketdata_backend/internal/feature/symbollist/usecase"
)

// DefaultSymbolsFile is the symbol universe loaded at startup when SYMBOLS_FILE is not set.
const DefaultSymbolsFile = "configs/symbols.yaml"

// NewSymbolUsecase creates the symbol list usecase backed by gorm.
func NewSymbolUsecase(db *gorm.DB) *symbolusecase.SymbolUsecase {
	return symbolusecase.NewSymbolUsecase(symboladapters.NewSymbolRepository(db))
}

// RegisterUniverse loads the configured symbol universe and registers symbols not yet known.
// A missing file falls back to the built-in default universe.
func RegisterUniverse(ctx context.Context, uc *symbolusecase.SymbolUsecase) (int64, error) {
	path := os.Getenv("SYMBOLS_FILE")
	if path == "" {
		path = DefaultSymbolsFile
	}
	symbols, err := symboladapters.LoadSymbolsFile(path)
	if err != nil {
		return 0, fmt.Errorf("load symbols from %s: %w", path, err)
	}
	return uc.RegisterUniverse(ctx, symbols)
}
