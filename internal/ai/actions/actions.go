// Package actions 是 AI 修改版面的唯一入口，每个动作都检查急停并写审计日志。
// 这里没有删除和封禁操作。
package actions

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"aibbs/internal/ai/audit"
	"aibbs/internal/config"
	"aibbs/internal/metrics"
	"aibbs/internal/models"
	"aibbs/internal/store"
	"aibbs/internal/utils"

	"go.uber.org/zap"
)

// 动作被拒绝的原因
var (
	ErrKillSwitch     = stderrors.New("ai kill switch active")
	ErrThreadNotFound = stderrors.New("thread not found")
	ErrThreadLocked   = stderrors.New("thread locked")
	ErrParentMismatch = stderrors.New("reply target not in thread")
)

// BlockedError 表示被策略拒绝，而不是执行失败
type BlockedError struct {
	Action string
	Reason error
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s blocked: %v", e.Action, e.Reason)
}

func (e *BlockedError) Unwrap() error { return e.Reason }

// Actions 执行 AI 的副作用操作
type Actions struct {
	st    *store.Store
	cfg   config.Provider
	audit audit.Sink
	log   *zap.Logger
	now   func() time.Time
}

func New(st *store.Store, cfg config.Provider, sink audit.Sink, log *zap.Logger) *Actions {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Actions{st: st, cfg: cfg, audit: sink, log: log, now: time.Now}
}

// killSwitch 急停开启时写审计并返回 true
func (a *Actions) killSwitch(ctx context.Context, action string) bool {
	if !a.cfg.Snapshot().AI.KillSwitch {
		return false
	}
	a.log.Warn("AI kill switch active, blocking action", zap.String("action", action))
	a.audit.Record(ctx, audit.Entry{
		Actor:     audit.ActorSystem,
		EventType: models.EventKillSwitch,
		TargetID:  action,
		Reason:    "Kill Switch Enabled",
	})
	metrics.Actions.WithLabelValues(action, "kill_switch").Inc()
	return true
}

// CreatePost 在主题末尾追加一条 AI 帖子，回复对象为主题首帖
func (a *Actions) CreatePost(ctx context.Context, threadID uint, body, role string, score float64, reason string) bool {
	const action = "create_post"
	if a.killSwitch(ctx, action) {
		return false
	}

	body = cleanBody(body)
	post := &models.Post{
		Name:      "AI (" + role + ")",
		Depth:     1,
		Content:   body,
		PosterID:  models.AIPosterID,
		IsAI:      true,
		AIRole:    &role,
		AIScore:   &score,
		AIReason:  &reason,
		CreatedAt: a.now().UTC(),
	}

	err := a.st.Transaction(ctx, func(tx *store.Store) error {
		root, err := lockableRoot(ctx, tx, action, threadID)
		if err != nil {
			return err
		}
		last, err := tx.LastNumber(ctx, root.ID)
		if err != nil {
			return err
		}
		post.Language = root.Language
		post.ThreadID = &root.ID
		post.ReplyToID = &root.ID
		post.Number = last + 1
		return tx.InsertPost(ctx, post)
	})
	if err != nil {
		a.fail(action, threadID, err)
		return false
	}

	a.audit.Record(ctx, audit.Entry{
		Actor:     role,
		EventType: models.EventPostCreate,
		TargetID:  audit.PostTarget(post.ID),
		Reason:    reason,
		Payload:   map[string]any{"thread_id": threadID, "score": score},
		Content:   body,
	})
	metrics.Actions.WithLabelValues(action, "ok").Inc()
	metrics.PostsCreated.WithLabelValues("ai").Inc()
	a.log.Info("AI post created",
		zap.Uint("thread_id", threadID),
		zap.Uint("post_id", post.ID),
		zap.Int("number", post.Number),
	)
	return true
}

// FlagPost 记录审核标记，不修改帖子本身
func (a *Actions) FlagPost(ctx context.Context, postID uint, reason string, score float64) bool {
	const action = "flag_post"
	if a.killSwitch(ctx, action) {
		return false
	}

	a.audit.Record(ctx, audit.Entry{
		Actor:     audit.ActorModerator,
		EventType: models.EventPostFlag,
		TargetID:  audit.PostTarget(postID),
		Reason:    reason,
		Payload:   map[string]any{"score": score},
	})
	metrics.Actions.WithLabelValues(action, "ok").Inc()
	a.log.Info("post flagged", zap.Uint("post_id", postID), zap.Float64("score", score))
	return true
}

// ReplyParams 人格回复参数
type ReplyParams struct {
	ThreadID  uint
	ReplyToID uint
	Persona   string
	Content   string
	Depth     int
	GenID     string
	Reason    string // 生成模式，如 "multi"、"chain"
}

// CreateReply 针对主题内某条帖子写入人格回复
func (a *Actions) CreateReply(ctx context.Context, p ReplyParams) (*models.Post, error) {
	const action = "create_reply"
	if a.killSwitch(ctx, action) {
		return nil, &BlockedError{Action: action, Reason: ErrKillSwitch}
	}

	body := cleanBody(p.Content)
	persona := utils.TruncateRunes(p.Persona, models.MaxNameLength)
	role := "persona"
	post := &models.Post{
		Name:      persona,
		Persona:   &persona,
		Depth:     p.Depth,
		Content:   body,
		PosterID:  models.AIPosterID,
		IsAI:      true,
		AIRole:    &role,
		CreatedAt: a.now().UTC(),
	}
	if p.GenID != "" {
		gen := p.GenID
		post.GenID = &gen
	}
	if p.Reason != "" {
		reason := p.Reason
		post.AIReason = &reason
	}

	err := a.st.Transaction(ctx, func(tx *store.Store) error {
		root, err := lockableRoot(ctx, tx, action, p.ThreadID)
		if err != nil {
			return err
		}
		parent, err := tx.GetPost(ctx, p.ReplyToID)
		if stderrors.Is(err, store.ErrNotFound) || (err == nil && parent.RootID() != root.ID) {
			return &BlockedError{Action: action, Reason: ErrParentMismatch}
		}
		if err != nil {
			return err
		}
		last, err := tx.LastNumber(ctx, root.ID)
		if err != nil {
			return err
		}
		post.Language = root.Language
		post.ThreadID = &root.ID
		post.ReplyToID = &parent.ID
		post.Number = last + 1
		return tx.InsertPost(ctx, post)
	})
	if err != nil {
		a.fail(action, p.ThreadID, err)
		return nil, err
	}

	payload := map[string]any{
		"thread_id":   p.ThreadID,
		"reply_to_id": p.ReplyToID,
		"depth":       p.Depth,
	}
	if p.GenID != "" {
		payload["gen_id"] = p.GenID
	}
	a.audit.Record(ctx, audit.Entry{
		Actor:     persona,
		EventType: models.EventPostCreate,
		TargetID:  audit.PostTarget(post.ID),
		Reason:    p.Reason,
		Payload:   payload,
		Content:   body,
	})
	metrics.Actions.WithLabelValues(action, "ok").Inc()
	source := "ai"
	if p.Depth > 1 {
		source = "chain"
	}
	metrics.PostsCreated.WithLabelValues(source).Inc()
	return post, nil
}

// lockableRoot 读取主题首帖，不存在或已锁定时拒绝
func lockableRoot(ctx context.Context, tx *store.Store, action string, threadID uint) (*models.Post, error) {
	root, err := tx.GetPost(ctx, threadID)
	if stderrors.Is(err, store.ErrNotFound) || (err == nil && !root.IsRoot()) {
		return nil, &BlockedError{Action: action, Reason: ErrThreadNotFound}
	}
	if err != nil {
		return nil, err
	}
	if root.IsLocked {
		return nil, &BlockedError{Action: action, Reason: ErrThreadLocked}
	}
	return root, nil
}

func (a *Actions) fail(action string, threadID uint, err error) {
	var blocked *BlockedError
	if stderrors.As(err, &blocked) {
		metrics.Actions.WithLabelValues(action, "blocked").Inc()
		a.log.Info("AI action blocked", zap.String("action", action), zap.Uint("thread_id", threadID), zap.Error(blocked.Reason))
		return
	}
	metrics.Actions.WithLabelValues(action, "error").Inc()
	a.log.Error("AI action failed", zap.String("action", action), zap.Uint("thread_id", threadID), zap.Error(err))
}

func cleanBody(s string) string {
	return utils.TruncateRunes(strings.TrimSpace(utils.StripHTML(s)), models.MaxContentLength)
}
