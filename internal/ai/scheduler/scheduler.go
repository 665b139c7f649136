// Package scheduler 定时触发 orchestrator 的维护任务
package scheduler

import (
	"context"
	"sync"
	"time"

	"aibbs/internal/config"

	"go.uber.org/zap"
)

// Tasks 每个 tick 执行的任务
type Tasks interface {
	ProcessScheduledTasks(ctx context.Context)
}

type Scheduler struct {
	cfg   config.Provider
	tasks Tasks
	log   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg config.Provider, tasks Tasks, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, tasks: tasks, log: log}
}

// Start 启动循环并返回是否启动成功。
// AI 关闭、急停开启或已在运行时不启动
func (s *Scheduler) Start(ctx context.Context) bool {
	ai := s.cfg.Snapshot().AI
	if !ai.Enabled || ai.KillSwitch {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("AI scheduler started", zap.Duration("interval", ai.SchedulerInterval))
	return true
}

// Running 循环是否在运行
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop 结束循环并等待退出
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
		s.log.Info("AI scheduler stopped")
	}()

	for {
		ai := s.cfg.Snapshot().AI
		if ai.KillSwitch {
			s.log.Warn("kill switch detected, stopping scheduler")
			return
		}
		s.tick(ctx)

		interval := ai.SchedulerInterval
		if interval <= 0 {
			interval = time.Minute
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled task panicked", zap.Any("panic", r))
		}
	}()
	s.tasks.ProcessScheduledTasks(ctx)
}
