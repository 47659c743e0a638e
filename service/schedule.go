package service

import (
	"context"
	"time"

	"github.com/BerniceZTT/dialer_end/utils"
)

// RunEvery 按固定间隔执行任务，直到ctx取消。任务失败只记录日志。
func RunEvery(ctx context.Context, interval time.Duration, name string, task func(context.Context) error) error {
	logger := utils.Component(name)
	logger.Info().Dur("interval", interval).Msg("定时任务启动")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("定时任务停止")
			return nil
		case <-ticker.C:
			if err := task(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("定时任务执行失败")
			}
		}
	}
}

// RunClaimSweeper 定期清理过期占用字段
func RunClaimSweeper(ctx context.Context, claims *ClaimManager, interval time.Duration) error {
	return RunEvery(ctx, interval, "claim-sweeper", func(ctx context.Context) error {
		_, err := claims.SweepExpired(ctx)
		return err
	})
}
