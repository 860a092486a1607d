// Package scheduler 运行后台定时任务。
package scheduler

import (
	"fmt"
	"time"

	"smartdoc-go/pkg/log"

	"github.com/go-co-op/gocron"
)

// StaleReason 写入超时文档的失败原因。
const StaleReason = "processing timed out"

// StaleFailer 将长时间停留在 processing 的文档标记为失败。
type StaleFailer interface {
	FailStale(olderThan time.Time, reason string) (int64, error)
}

// Sweeper 周期性清理因 worker 崩溃而卡在 processing 的文档，使其可以重新触发分析。
type Sweeper struct {
	docs       StaleFailer
	staleAfter time.Duration
	interval   time.Duration
	scheduler  *gocron.Scheduler
	now        func() time.Time
}

// NewSweeper 创建 Sweeper。staleAfter 应大于摄取锁的 TTL。
func NewSweeper(docs StaleFailer, staleAfter, interval time.Duration) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Sweeper{
		docs:       docs,
		staleAfter: staleAfter,
		interval:   interval,
		scheduler:  s,
		now:        time.Now,
	}
}

// SweepOnce 执行一次清理，返回被标记为失败的文档数。
func (s *Sweeper) SweepOnce() (int64, error) {
	n, err := s.docs.FailStale(s.now().Add(-s.staleAfter), StaleReason)
	if err != nil {
		log.Errorf("[Sweeper] 清理超时文档失败: %v", err)
		return 0, err
	}
	if n > 0 {
		log.Warnf("[Sweeper] %d 个文档处理超时，已标记为失败", n)
	}
	return n, nil
}

// Start 注册定时任务并异步启动。
func (s *Sweeper) Start() error {
	if s.interval <= 0 || s.staleAfter <= 0 {
		return fmt.Errorf("invalid sweeper schedule: interval=%s stale_after=%s", s.interval, s.staleAfter)
	}
	_, err := s.scheduler.Every(s.interval).Tag("stale-documents").SingletonMode().Do(func() {
		_, _ = s.SweepOnce()
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	log.Infof("[Sweeper] 已启动, 间隔: %s, 超时阈值: %s", s.interval, s.staleAfter)
	return nil
}

// Stop 停止调度器并等待正在运行的任务结束。
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}
