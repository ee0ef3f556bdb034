package entity

import "time"

// DateLayout は日付の入出力で使用するフォーマットです。
const DateLayout = "2006-01-02"

// Day は t をUTCの暦日（00:00:00 UTC）に切り詰めます。
// 鮮度判定やウォーターマークの比較はすべてこの値で行います。
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay は d が月曜〜金曜であれば true を返します。祝日は考慮しません。
func IsTradingDay(d time.Time) bool {
	switch d.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
