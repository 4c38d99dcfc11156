package interfaces

import (
	"context"
	"time"

	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/service/inventory/domain/port"
)

// ExpiredReservationProcessor 是清理任务依赖的最小接口。
type ExpiredReservationProcessor interface {
	ProcessExpiredReservations(ctx context.Context) (int64, error)
}

// SweeperRunner 按固定间隔触发过期清理。配置了分布式锁时，同一时刻只有一个实例在清理。
type SweeperRunner struct {
	processor ExpiredReservationProcessor
	locker    port.Locker
	interval  time.Duration
}

func NewSweeperRunner(processor ExpiredReservationProcessor, locker port.Locker, interval time.Duration) *SweeperRunner {
	if locker == nil {
		locker = port.NoopLocker{}
	}
	return &SweeperRunner{processor: processor, locker: locker, interval: interval}
}

// Run 阻塞直到 ctx 被取消。单次清理失败只记录日志，等下一个周期重试。
func (r *SweeperRunner) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", r.interval).Msg("expiry sweeper started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一次加锁清理，返回本次过期的数量。
func (r *SweeperRunner) RunOnce(ctx context.Context) int64 {
	if err := r.locker.Lock(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("could not acquire sweep lock, skip this round")
		return 0
	}
	defer func() {
		if err := r.locker.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	expired, err := r.processor.ProcessExpiredReservations(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("sweep failed")
		return 0
	}
	return expired
}
