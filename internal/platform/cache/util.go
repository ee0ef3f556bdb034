package cache

import (
	"time"
)

// TimeUntilNextUTCDay は now から次のUTC日付境界（00:00 UTC）までの期間を返します。
// 価格履歴の鮮度判定はUTCの暦日で行うため、キャッシュもこの境界を越えて保持しません。
func TimeUntilNextUTCDay(now time.Time) time.Duration {
	u := now.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(u)
}
