// Package scheduler 提供按周期边界对齐的定时执行器，自动同步用它
// 在每个对齐点之后延迟一小段时间再跑任务，等交易所把收盘数据落稳。
package scheduler

import (
	"context"
	"time"

	"leandata/internal/logger"
)

type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行：每到「对齐点+Offset」执行一次 task，ctx 取消后返回。
func (s *AlignedScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("AlignedScheduler: interval=%s 非法，退出", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("AlignedScheduler: 启动 interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		if s.ctx.Err() != nil {
			return
		}
		logger.Infof("AlignedScheduler: run_immediately=true，先执行一轮再进入对齐循环")
		task()
	}

	for {
		now := s.nowFn().UTC()
		alignAt, wakeAt, wait := s.nextRun(now)

		logger.Infof("AlignedScheduler: 下一对齐点=%s 执行时间=%s (in %s) | uptime=%s",
			alignAt.Format(time.RFC3339),
			wakeAt.Format(time.RFC3339),
			wait.Truncate(time.Second),
			now.Sub(startAt).Truncate(time.Second))

		if wait <= 0 {
			task()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("AlignedScheduler: ctx 取消，退出")
			return
		case <-timer.C:
		}
		task()
	}
}

// nextRun 计算下一个对齐点与实际唤醒时间。
func (s *AlignedScheduler) nextRun(now time.Time) (alignAt, wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	alignAt = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = alignAt.Add(s.Offset)
	wait = wakeAt.Sub(now)
	return alignAt, wakeAt, wait
}
