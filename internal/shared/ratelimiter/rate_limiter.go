// Package ratelimiter は上流APIへの呼び出し間隔をプロセス全体で制御します。
package ratelimiter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval は Twelve Data 無料枠（8 req/min）に合わせた既定の呼び出し間隔です。
const DefaultMinInterval = 8 * time.Second

// RateLimiterInterface は、API呼び出しなどの操作の頻度を制限するインターフェースです。
type RateLimiterInterface interface {
	Acquire(ctx context.Context) error
}

// RateLimiter は、すべての呼び出し元で共有される単一のゲートです。
// 直前の Acquire から minInterval が経過するまで次の Acquire をブロックします。
type RateLimiter struct {
	minInterval time.Duration
	limiter     *rate.Limiter
}

var _ RateLimiterInterface = (*RateLimiter)(nil)

// NewRateLimiter は新しいRateLimiterのインスタンスを生成します。
// minInterval が0以下の場合は DefaultMinInterval を使用します。
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &RateLimiter{
		minInterval: minInterval,
		// バースト1: トークンは常に最大1つなので連続呼び出しは必ず minInterval 以上離れる
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// MinInterval は設定された呼び出し間隔を返します。
func (rl *RateLimiter) MinInterval() time.Duration {
	return rl.minInterval
}

// Acquire は次の呼び出しが許可されるまで待機します。
// 待機そのものは失敗せず、返すエラーはコンテキストのキャンセル（または期限内に枠が空かない場合）のみです。
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	r := rl.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	slog.Debug("rate limit: waiting for upstream slot", "delay", delay)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		// 使わなかった枠を返却して後続の呼び出しを遅らせない
		r.Cancel()
		return ctx.Err()
	}
}
