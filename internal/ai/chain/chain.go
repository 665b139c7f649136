// Package chain 让 AI 人格之间互相回复几轮。
// 每一轮是队列中的一个 step，下一轮延迟后再入队，等待期间不占用 goroutine。
package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"aibbs/internal/ai/actions"
	"aibbs/internal/ai/persona"
	"aibbs/internal/config"
	"aibbs/internal/metrics"
	"aibbs/internal/models"
	"aibbs/internal/store"
	"aibbs/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const contextPosts = 6

// Step 一个待执行的轮次：以 Depth+1 回复 ParentID
type Step struct {
	ThreadID uint
	ParentID uint
	Lang     string
	GenID    string
	Depth    int
}

type Generator interface {
	Generate(ctx context.Context, req persona.Request) []persona.Reply
}

type Replier interface {
	CreateReply(ctx context.Context, p actions.ReplyParams) (*models.Post, error)
}

// SafeChain 判断该深度的帖子是否还能继续被回复
func SafeChain(depth, maxDepth int) bool {
	return depth >= 0 && depth < maxDepth
}

type Deps struct {
	Config    config.Provider
	Store     *store.Store
	Generator Generator
	Replier   Replier
	Rand      *utils.Rand
	Log       *zap.Logger
	QueueSize int
	// StepTimeout 单轮超时（含生成）
	StepTimeout time.Duration
}

type Controller struct {
	Deps

	queue chan Step
	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup
	once  sync.Once
}

// New 启动 worker，用完调用 Stop
func New(d Deps) *Controller {
	if d.Rand == nil {
		d.Rand = utils.NewTimeRand()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 100
	}
	if d.StepTimeout <= 0 {
		d.StepTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Deps:  d,
		queue: make(chan Step, d.QueueSize),
		ctx:   ctx,
		stop:  cancel,
	}
	c.wg.Add(1)
	go c.worker()
	return c
}

// Submit 非阻塞入队，队列已满或已停止时返回 false
func (c *Controller) Submit(step Step) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.queue <- step:
		return true
	default:
		metrics.ChainDropped.Inc()
		c.Log.Warn("chain queue full, dropping step",
			zap.Uint("thread_id", step.ThreadID),
			zap.Uint("parent_id", step.ParentID),
			zap.Int("depth", step.Depth),
		)
		return false
	}
}

func (c *Controller) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case step := <-c.queue:
			if next := c.run(step); next != nil {
				c.later(*next)
			}
		}
	}
}

func (c *Controller) run(step Step) (next *Step) {
	defer func() {
		if r := recover(); r != nil {
			c.Log.Error("chain step panicked", zap.Any("panic", r))
			next = nil
		}
	}()
	ctx, cancel := context.WithTimeout(c.ctx, c.StepTimeout)
	defer cancel()
	return c.Advance(ctx, step)
}

// later 延迟后入队，期间停止则放弃
func (c *Controller) later(step Step) {
	delay := c.Config.Snapshot().AI.ChainDelay
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			c.Submit(step)
		case <-c.ctx.Done():
		}
	}()
}

// Stop 取消延迟中和执行中的 step 并等待 worker 退出，队列中的 step 直接丢弃
func (c *Controller) Stop() {
	c.once.Do(func() {
		c.stop()
		c.wg.Wait()
	})
}

// Advance 执行一轮，返回下一轮的 step；链条结束时返回 nil
func (c *Controller) Advance(ctx context.Context, step Step) *Step {
	ai := c.Config.Snapshot().AI
	log := c.Log.With(zap.Uint("thread_id", step.ThreadID), zap.Int("depth", step.Depth))

	if ai.KillSwitch {
		return c.end(log, "kill_switch")
	}
	if !SafeChain(step.Depth, ai.ChainMaxDepth) {
		return c.end(log, "max_depth")
	}
	if c.Rand.Float64() >= ai.ChainProbability {
		return c.end(log, "probability")
	}
	if step.GenID == "" {
		step.GenID = uuid.NewString()
	}

	parent, err := c.Store.GetPost(ctx, step.ParentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to load chain parent", zap.Error(err))
		}
		return c.end(log, "parent_missing")
	}
	if parent.IsHidden {
		return c.end(log, "parent_hidden")
	}
	threadID := step.ThreadID
	if threadID == 0 {
		threadID = parent.RootID()
	}
	lang := step.Lang
	if lang == "" {
		lang = parent.Language
	}

	recent, err := c.Store.RecentThreadPosts(ctx, threadID, contextPosts)
	if err != nil {
		log.Error("failed to load chain context", zap.Error(err))
		return c.end(log, "error")
	}

	replies := c.Generator.Generate(ctx, persona.Request{
		Text:     parent.Content,
		Lang:     lang,
		Context:  persona.FormatContext(recent),
		ThreadID: &threadID,
		Mode:     models.ModeChain,
	})
	if len(replies) == 0 {
		return c.end(log, "no_reply")
	}

	r := replies[0]
	post, err := c.Replier.CreateReply(ctx, actions.ReplyParams{
		ThreadID:  threadID,
		ReplyToID: parent.ID,
		Persona:   r.Persona,
		Content:   r.Text,
		Depth:     step.Depth + 1,
		GenID:     step.GenID,
		Reason:    models.ModeChain,
	})
	if err != nil {
		log.Info("chain reply refused", zap.Error(err))
		return c.end(log, "blocked")
	}

	metrics.ChainSteps.WithLabelValues("posted").Inc()
	log.Info("chain reply posted", zap.Uint("post_id", post.ID), zap.String("persona", r.Persona))
	return &Step{
		ThreadID: threadID,
		ParentID: post.ID,
		Lang:     lang,
		GenID:    step.GenID,
		Depth:    step.Depth + 1,
	}
}

func (c *Controller) end(log *zap.Logger, outcome string) *Step {
	metrics.ChainSteps.WithLabelValues(outcome).Inc()
	log.Debug("chain ended", zap.String("outcome", outcome))
	return nil
}
