// Package retry は上流呼び出しを回数上限付きの指数バックオフで再試行します。
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketdata_backend/internal/shared/ratelimiter"
)

const (
	// DefaultMaxAttempts は1つの操作に対する既定の試行回数（初回を含む）です。
	DefaultMaxAttempts = 3
	// DefaultBaseDelay は1回目の失敗後に待機する時間です。以降は2倍ずつ増えます。
	DefaultBaseDelay = time.Second
)

// ErrAttemptsExhausted はすべての試行が失敗したことを示します。
// 呼び出し側は「データなし」として扱い、致命的エラーにしないでください。
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Executor はレートリミッタと組み合わせたバックオフ実行器です。
type Executor struct {
	limiter     ratelimiter.RateLimiterInterface
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewExecutor は新しい Executor を生成します。
// maxAttempts が0以下なら DefaultMaxAttempts、baseDelay が負なら DefaultBaseDelay を使用します。
func NewExecutor(limiter ratelimiter.RateLimiterInterface, maxAttempts int, baseDelay time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay < 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Executor{
		limiter:     limiter,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
	}
}

// MaxAttempts は設定された試行回数を返します。
func (e *Executor) MaxAttempts() int {
	return e.maxAttempts
}

// Delay は attempt 回目（0始まり）の失敗後に待機する時間を返します。
func (e *Executor) Delay(attempt int) time.Duration {
	return e.baseDelay * time.Duration(1<<attempt)
}

// Do は op を最大 maxAttempts 回実行します。各試行の前にレートリミッタを通過します。
// 成功すればその結果を、すべて失敗すれば最後のエラーを包んだ ErrAttemptsExhausted を返します。
// コンテキストがキャンセルされた場合はその時点で打ち切り、ctx.Err() を返します。
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Acquire(ctx); err != nil {
				return zero, err
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		// 最後の試行の後は待機しない
		if attempt == e.maxAttempts-1 {
			break
		}
		delay := e.Delay(attempt)
		slog.Warn("upstream call failed, backing off",
			"attempt", attempt+1, "max_attempts", e.maxAttempts, "delay", delay, "error", err)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, e.maxAttempts, lastErr)
}

// sleepContext はコンテキストのキャンセルに反応する time.Sleep です。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
