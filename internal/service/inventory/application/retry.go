// internal/service/inventory/application/retry.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/service/inventory/domain"
)

// 创建预占时，乐观锁冲突最多重试一次，重试前固定等待 50ms。
const (
	DefaultConflictRetries = 1
	DefaultConflictBackoff = 50 * time.Millisecond
)

type retryPolicy struct {
	retries int
	backoff time.Duration
}

// onConflict 在 fn 返回 ErrWriteConflict 时按策略重试，其他错误直接返回。
// onRetry 在每次重试前调用，用于记录指标。
func (p retryPolicy) onConflict(ctx context.Context, op string, onRetry func(), fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrWriteConflict) || attempt >= p.retries {
			return err
		}
		if onRetry != nil {
			onRetry()
		}
		logger.Ctx(ctx).Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Dur("backoff", p.backoff).
			Msg("write conflict, retrying")

		timer := time.NewTimer(p.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), op)
		case <-timer.C:
		}
	}
}
