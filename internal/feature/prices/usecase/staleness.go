package usecase

import (
	"time"

	"marketdata_backend/internal/feature/prices/domain/entity"
)

// IsStale は保存済みデータの再取得が必要かどうかを判定します。
//
// watermark が today より前で、かつ today が取引日（月〜金）の場合にのみ true を返します。
// 週末は前営業日までのデータがあれば新しいデータは期待できないため、上流APIを呼びません。
// 日付はすべてUTCの暦日で比較し、祝日カレンダーは持ちません。
func IsStale(watermark, today time.Time) bool {
	wm := entity.Day(watermark)
	d := entity.Day(today)
	return wm.Before(d) && entity.IsTradingDay(d)
}
