// Package orchestrator 决定用户发帖后 AI 做什么：先审核，再决定是否参与讨论。
package orchestrator

import (
	"context"
	"errors"
	"time"

	"aibbs/internal/ai/audit"
	"aibbs/internal/ai/workers"
	"aibbs/internal/config"
	"aibbs/internal/models"
	"aibbs/internal/store"
	"aibbs/internal/utils"

	"go.uber.org/zap"
)

const (
	contextPosts = 5
	titleExcerpt = 60
)

type Moderator interface {
	Moderate(ctx context.Context, body string) workers.Moderation
}

type Engager interface {
	Engage(ctx context.Context, title string, posts []models.Post) workers.Engagement
}

// Mutator orchestrator 用到的 actions.Actions 子集
type Mutator interface {
	CreatePost(ctx context.Context, threadID uint, body, role string, score float64, reason string) bool
	FlagPost(ctx context.Context, postID uint, reason string, score float64) bool
}

// Memory 记录事件和定时任务的学习值
type Memory interface {
	LogIncident(ctx context.Context, targetID, reason string) error
	RecordLearning(ctx context.Context, key, value string) error
}

// Gate AI 回复限流
type Gate interface {
	Ready(ctx context.Context, threadID uint) bool
	Record(ctx context.Context, threadID uint)
}

type Deps struct {
	Config    config.Provider
	Store     *store.Store
	Moderator Moderator
	Engager   Engager
	Actions   Mutator
	Memory    Memory
	Gate      Gate
	Log       *zap.Logger
}

type Orchestrator struct {
	Deps
	now func() time.Time
}

func New(d Deps) *Orchestrator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Orchestrator{Deps: d, now: time.Now}
}

// OnNewPost 处理刚保存的用户帖子
func (o *Orchestrator) OnNewPost(ctx context.Context, postID uint) {
	settings := o.Config.Snapshot().AI
	if !settings.Enabled {
		return
	}

	post, err := o.Store.GetPost(ctx, postID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.Log.Error("failed to load post", zap.Uint("post_id", postID), zap.Error(err))
		}
		return
	}
	if post.IsAI {
		return
	}

	mod := o.Moderator.Moderate(ctx, post.Content)
	if mod.Score > settings.FlagThreshold {
		reason := mod.Reason
		if reason == "" {
			reason = "High toxicity"
		}
		o.Log.Info("flagging post", zap.Uint("post_id", postID), zap.Float64("score", mod.Score))
		if o.Actions.FlagPost(ctx, postID, reason, mod.Score) && o.Memory != nil {
			if err := o.Memory.LogIncident(ctx, audit.PostTarget(postID), reason); err != nil {
				o.Log.Error("failed to record incident", zap.Uint("post_id", postID), zap.Error(err))
			}
		}
		return
	}

	threadID := post.RootID()
	if o.Gate != nil && !o.Gate.Ready(ctx, threadID) {
		return
	}

	root, err := o.Store.GetPost(ctx, threadID)
	if err != nil {
		o.Log.Error("failed to load thread root", zap.Uint("thread_id", threadID), zap.Error(err))
		return
	}
	recent, err := o.Store.LatestByNumber(ctx, threadID, contextPosts)
	if err != nil {
		o.Log.Error("failed to load thread context", zap.Uint("thread_id", threadID), zap.Error(err))
		return
	}

	eng := o.Engager.Engage(ctx, threadTitle(root), recent)
	if !eng.ShouldReply || eng.ReplyText == "" {
		return
	}

	o.Log.Info("AI replying to thread", zap.Uint("thread_id", threadID))
	if o.Actions.CreatePost(ctx, threadID, eng.ReplyText, "user", eng.Confidence, "Engagement") && o.Gate != nil {
		o.Gate.Record(ctx, threadID)
	}
}

// ProcessScheduledTasks 定时维护入口，目前只记录心跳
func (o *Orchestrator) ProcessScheduledTasks(ctx context.Context) {
	if !o.Config.Snapshot().AI.Enabled {
		return
	}
	if o.Memory == nil {
		return
	}
	if err := o.Memory.RecordLearning(ctx, "scheduler.last_run", o.now().UTC().Format(time.RFC3339)); err != nil {
		o.Log.Warn("scheduler heartbeat failed", zap.Error(err))
	}
}

func threadTitle(root *models.Post) string {
	if root.Title != "" {
		return root.Title
	}
	return utils.Excerpt(root.Content, titleExcerpt)
}
