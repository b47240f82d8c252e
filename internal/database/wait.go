package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialBackoff は接続リトライの初回遅延。
	initialBackoff = 250 * time.Millisecond
	// maxBackoff は接続リトライの最大遅延。
	maxBackoff = 4 * time.Second
)

// Pinger はDBの疎通確認を抽象化するインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回250ms、2倍ずつ増加、最大4秒。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// WaitForDB はctxの期限までPingをリトライし、DBが応答するのを待つ。
// コンテナ起動直後などDBの準備が整っていない場合に使用する。
func WaitForDB(ctx context.Context, db Pinger) error {
	for attempt := 0; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}

		delay := CalculateBackoff(attempt)
		slog.Warn("database not ready, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("failed to connect to database after %d attempts: %w", attempt+1, err)
		case <-timer.C:
		}
	}
}
