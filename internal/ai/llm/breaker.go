package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState 熔断器状态
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold uint
	SuccessThreshold uint
	RetryTimeout     time.Duration
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     60 * time.Second,
	}
}

// Breaker 后端持续出错时快速失败
type Breaker struct {
	next Gateway
	cfg  BreakerConfig
	log  *zap.Logger
	now  func() time.Time

	mu              sync.Mutex
	state           BreakerState
	failureCount    uint
	successCount    uint
	nextAttemptTime time.Time
}

func NewBreaker(next Gateway, cfg BreakerConfig, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		next:  next,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateClosed,
	}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State 当前熔断器状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	if !b.allowRequest() {
		return "", &BackendError{Provider: b.next.Name(), Kind: KindCircuitOpen, Err: errors.New("circuit open")}
	}

	out, err := b.next.Complete(ctx, req)
	if err != nil {
		b.recordFailure()
		return "", err
	}
	b.recordSuccess()
	return out, nil
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.nextAttemptTime) {
			return false
		}
		b.state = StateHalfOpen
		b.successCount = 0
		b.log.Info("circuit breaker half-open", zap.String("provider", b.next.Name()))
		return true
	case StateHalfOpen:
		return b.successCount < b.cfg.SuccessThreshold
	default:
		return true
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.log.Info("circuit breaker closed", zap.String("provider", b.next.Name()))
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		// 半开状态下任何失败都重新熔断
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.nextAttemptTime = b.now().Add(b.cfg.RetryTimeout)
	b.log.Warn("circuit breaker opened",
		zap.String("provider", b.next.Name()),
		zap.Uint("failures", b.failureCount),
		zap.Time("next_attempt", b.nextAttemptTime),
	)
}
