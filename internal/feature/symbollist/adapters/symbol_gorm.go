// Package adapters はsymbollistフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pricesusecase "marketdata_backend/internal/feature/prices/usecase"
	"marketdata_backend/internal/feature/symbollist/domain/entity"
	"marketdata_backend/internal/feature/symbollist/usecase"
)

// symbolGorm はSymbolRepositoryインターフェースのGORM実装です。
type symbolGorm struct {
	db *gorm.DB
}

var (
	_ usecase.SymbolRepository       = (*symbolGorm)(nil)
	_ pricesusecase.SymbolRepository = (*symbolGorm)(nil)
)

// NewSymbolRepository は指定されたDB接続でsymbolGormリポジトリの新しいインスタンスを生成します。
func NewSymbolRepository(db *gorm.DB) *symbolGorm {
	return &symbolGorm{db: db}
}

// ListActive はsort_key順にすべてのアクティブな銘柄を返します。
func (r *symbolGorm) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Order("code ASC").
		Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// ListCodes はsort_key順にアクティブな銘柄のコードのみを返します。
func (r *symbolGorm) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&entity.Symbol{}).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Order("code ASC").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// EnsureSymbol は銘柄が未登録の場合のみ、コードを表示名として登録します。
func (r *symbolGorm) EnsureSymbol(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	s := entity.Symbol{Code: code, Name: code, Market: entity.DefaultMarket, IsActive: true}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(&s).Error
}

// UpsertDisplayName は表示名を登録または上書きします。最後に書いた値が残ります。
func (r *symbolGorm) UpsertDisplayName(ctx context.Context, code, name string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	s := entity.Symbol{Code: code, Name: name, Market: entity.DefaultMarket, IsActive: true}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}).
		Create(&s).Error
}

// SeedSymbols は設定ファイルの銘柄を未登録のものだけ登録し、登録件数を返します。
// 既存行（表示名や有効フラグ）は変更しません。
func (r *symbolGorm) SeedSymbols(ctx context.Context, symbols []entity.Symbol) (int64, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(&symbols)
	return res.RowsAffected, res.Error
}
