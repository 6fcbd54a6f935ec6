package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy は起動時の接続リトライ設定。
type RetryPolicy struct {
	Attempts       int           // 最大試行回数（1以下は1回のみ）
	InitialBackoff time.Duration // 初回の待機時間
	MaxBackoff     time.Duration // 待機時間の上限
}

// DefaultRetryPolicy はコンテナ起動直後のDB待ちを想定した設定を返す。
// 1秒から2倍ずつ増加、最大8秒、計6回。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       6,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
	}
}

// Backoff はn回目（0始まり）の失敗後の待機時間を計算する。
func (p RetryPolicy) Backoff(n int) time.Duration {
	delay := p.InitialBackoff
	for i := 0; i < n; i++ {
		delay *= 2
		if delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return delay
}

// Retry はfnが成功するまで指数バックオフで繰り返す。
// 試行回数を使い切った場合は最後のエラーを返す。ctxがキャンセルされた場合は即座に戻る。
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := p.Backoff(i)
		slog.Warn("store connection attempt failed",
			slog.String("operation", op),
			slog.Int("attempt", i+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}
