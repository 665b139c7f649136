// Package throttle 防止 AI 刷屏：全局每小时发帖额度，加上每次回复后的主题冷却。
package throttle

import (
	"context"
	"sync"
	"time"

	"aibbs/internal/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Throttle struct {
	cfg       config.Provider
	cooldowns Cooldowns
	log       *zap.Logger

	mu      sync.Mutex
	perHour int
	limiter *rate.Limiter
}

func New(cfg config.Provider, cooldowns Cooldowns, log *zap.Logger) *Throttle {
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Throttle{cfg: cfg, cooldowns: cooldowns, log: log}
}

// limiterFor 返回每小时限流器，额度配置变化时重建。调用方需持有 mu
func (t *Throttle) limiterFor(perHour int) *rate.Limiter {
	if t.limiter == nil || perHour != t.perHour {
		t.perHour = perHour
		if perHour <= 0 {
			t.limiter = rate.NewLimiter(0, 0)
		} else {
			t.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
		}
	}
	return t.limiter
}

// Ready 判断 AI 现在能否在该主题发帖，不消耗额度
func (t *Throttle) Ready(ctx context.Context, threadID uint) bool {
	ai := t.cfg.Snapshot().AI

	t.mu.Lock()
	tokens := t.limiterFor(ai.PostsPerHour).Tokens()
	t.mu.Unlock()
	if tokens < 1 {
		t.log.Debug("hourly AI post budget exhausted", zap.Uint("thread_id", threadID))
		return false
	}

	active, err := t.cooldowns.Active(ctx, threadID)
	if err != nil {
		t.log.Warn("cooldown lookup failed, skipping reply", zap.Uint("thread_id", threadID), zap.Error(err))
		return false
	}
	if active {
		t.log.Debug("thread in AI cooldown", zap.Uint("thread_id", threadID))
		return false
	}
	return true
}

// Record 扣除一次额度并开始主题冷却
func (t *Throttle) Record(ctx context.Context, threadID uint) {
	ai := t.cfg.Snapshot().AI

	t.mu.Lock()
	t.limiterFor(ai.PostsPerHour).Allow()
	t.mu.Unlock()

	if err := t.cooldowns.Mark(ctx, threadID, ai.ReplyCooldown); err != nil {
		t.log.Warn("failed to start cooldown", zap.Uint("thread_id", threadID), zap.Error(err))
	}
}
