// Package adapters はpricesフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/feature/prices/usecase"
)

// insertBatchSize は1回のINSERT文に含める最大行数です。
const insertBatchSize = 500

type priceGorm struct {
	db *gorm.DB
}

var _ usecase.PriceRepository = (*priceGorm)(nil)

// NewPriceRepository は指定されたDB接続で価格リポジトリの新しいインスタンスを生成します。
func NewPriceRepository(db *gorm.DB) *priceGorm {
	return &priceGorm{db: db}
}

// PricePointModel は price_points テーブルの行です。(symbol, date) は一意です。
type PricePointModel struct {
	ID     uint      `gorm:"primaryKey"`
	Symbol string    `gorm:"size:20;not null;uniqueIndex:price_sym_date,priority:1"`
	Date   time.Time `gorm:"type:date;not null;uniqueIndex:price_sym_date,priority:2"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume int64   `gorm:"not null;default:0"`
}

func (PricePointModel) TableName() string {
	return "price_points"
}

func toModel(e entity.PricePoint) PricePointModel {
	return PricePointModel{
		Symbol: e.Symbol,
		Date:   entity.Day(e.Date),
		Open:   e.Open,
		High:   e.High,
		Low:    e.Low,
		Close:  e.Close,
		Volume: e.Volume,
	}
}

func toEntity(m PricePointModel) entity.PricePoint {
	return entity.PricePoint{
		Symbol: m.Symbol,
		Date:   entity.Day(m.Date),
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
	}
}

// GetWatermark は銘柄の最新日付を返します。行がなければ ok=false です。
func (r *priceGorm) GetWatermark(ctx context.Context, symbol string) (time.Time, bool, error) {
	var rows []PricePointModel
	if err := r.db.WithContext(ctx).
		Select("date").
		Where("symbol = ?", symbol).
		Order("date DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return entity.Day(rows[0].Date), true, nil
}

// ListWatermarks は symbols それぞれの最新日付を1回のクエリで返します。行のない銘柄は含まれません。
func (r *priceGorm) ListWatermarks(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	var rows []PricePointModel
	if err := r.db.WithContext(ctx).
		Select("symbol", "date").
		Where("symbol IN ?", symbols).
		Where("date = (SELECT MAX(latest.date) FROM price_points AS latest WHERE latest.symbol = price_points.symbol)").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.Symbol] = entity.Day(m.Date)
	}
	return out, nil
}

// InsertIfAbsent は (symbol, date) が未登録の行だけを挿入します。
// 既存の行は上流の訂正値であっても上書きしません。戻り値は実際に挿入された件数です。
func (r *priceGorm) InsertIfAbsent(ctx context.Context, points []entity.PricePoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	ms := make([]PricePointModel, 0, len(points))
	for _, p := range points {
		ms = append(ms, toModel(p))
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoNothing: true,
	}).CreateInBatches(&ms, insertBatchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// FindPricePoints は新しい順に価格を返します。limit が0以下なら全件、maxDate がゼロ値なら上限なしです。
func (r *priceGorm) FindPricePoints(ctx context.Context, symbol string, limit int, maxDate time.Time) ([]entity.PricePoint, error) {
	var rows []PricePointModel
	q := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("date DESC")
	if !maxDate.IsZero() {
		q = q.Where("date <= ?", entity.Day(maxDate))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.PricePoint, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}
