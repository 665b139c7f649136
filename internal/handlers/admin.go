package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aibbs/internal/ai/audit"
	"aibbs/internal/config"
	"aibbs/internal/models"
	"aibbs/internal/store"
	"aibbs/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const summaryTitleChars = 60

// Toggles 运行时可修改的配置
type Toggles interface {
	config.Provider
	SetKillSwitch(on bool)
	SetEnabled(on bool)
}

type Summarizer interface {
	Summarize(ctx context.Context, title string, posts []models.Post) string
}

// Advisor 向管理员展示 AI 记录的内容
type Advisor interface {
	Proposals(ctx context.Context) ([]string, error)
	OpenIncidents(ctx context.Context) ([]models.AIIncident, error)
}

type AdminHandler struct {
	cfg        Toggles
	st         *store.Store
	audit      audit.Sink
	summarizer Summarizer
	advisor    Advisor
	log        *zap.Logger
}

func NewAdminHandler(cfg Toggles, st *store.Store, sink audit.Sink, summarizer Summarizer, advisor Advisor, log *zap.Logger) *AdminHandler {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		cfg:        cfg,
		st:         st,
		audit:      sink,
		summarizer: summarizer,
		advisor:    advisor,
		log:        log.Named("admin"),
	}
}

// HidePost 隐藏帖子（内容显示为已删除）
func (h *AdminHandler) HidePost(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	found, err := h.st.SetHidden(ctx, id)
	if err != nil {
		h.log.Error("hide post failed", zap.Uint("post_id", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to hide post")
		return
	}
	if found {
		h.audit.Record(ctx, audit.Entry{
			Actor:     audit.ActorAdmin,
			EventType: models.EventPostHide,
			TargetID:  audit.PostTarget(id),
			Reason:    "admin",
		})
		h.log.Info("admin hid post", zap.Uint("post_id", id))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": found})
}

// LockThread 锁定主题，之后 AI 不再回复
func (h *AdminHandler) LockThread(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	found, err := h.st.SetLocked(ctx, id)
	if err != nil {
		h.log.Error("lock thread failed", zap.Uint("thread_id", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to lock thread")
		return
	}
	if found {
		h.audit.Record(ctx, audit.Entry{
			Actor:     audit.ActorAdmin,
			EventType: models.EventThreadLock,
			TargetID:  fmt.Sprintf("thread:%d", id),
			Reason:    "admin",
		})
		h.log.Info("admin locked thread", zap.Uint("thread_id", id))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": found})
}

// BanIP 封禁 IP，duration 为空时永久封禁
func (h *AdminHandler) BanIP(c *gin.Context) {
	ip := strings.TrimSpace(c.PostForm("ip"))
	if ip == "" {
		jsonError(c, http.StatusBadRequest, "IP required")
		return
	}
	reason := utils.TruncateRunes(strings.TrimSpace(c.PostForm("reason")), 200)

	var d time.Duration
	if raw := strings.TrimSpace(c.PostForm("duration")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			jsonError(c, http.StatusBadRequest, "invalid duration")
			return
		}
		d = parsed
	}

	ban, err := h.st.BanIP(c.Request.Context(), ip, reason, d)
	if err != nil {
		h.log.Error("ban ip failed", zap.String("ip", ip), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to ban ip")
		return
	}
	h.log.Info("admin banned ip", zap.String("ip", ip), zap.Duration("duration", d))
	c.JSON(http.StatusOK, gin.H{"ok": true, "expires_at": ban.ExpiresAt})
}

// KillSwitch 开关全局 AI 急停；未传 on 时默认开启
func (h *AdminHandler) KillSwitch(c *gin.Context) {
	on := utils.FormBool(c.DefaultPostForm("on", "true"))
	h.cfg.SetKillSwitch(on)
	h.settingsChanged(c.Request.Context(), "kill_switch", on)
	c.JSON(http.StatusOK, gin.H{"ok": true, "kill_switch": on})
}

// SetEnabled 开关 AI 自动回复
func (h *AdminHandler) SetEnabled(c *gin.Context) {
	raw, ok := c.GetPostForm("on")
	if !ok {
		jsonError(c, http.StatusBadRequest, "on required")
		return
	}
	on := utils.FormBool(raw)
	h.cfg.SetEnabled(on)
	h.settingsChanged(c.Request.Context(), "enabled", on)
	c.JSON(http.StatusOK, gin.H{"ok": true, "enabled": on})
}

func (h *AdminHandler) settingsChanged(ctx context.Context, key string, on bool) {
	h.audit.Record(ctx, audit.Entry{
		Actor:     audit.ActorAdmin,
		EventType: models.EventSettingsChange,
		TargetID:  "ai." + key,
		Reason:    "admin",
		Payload:   map[string]any{key: on},
	})
	h.log.Info("ai setting changed", zap.String("key", key), zap.Bool("value", on))
}

// Status 当前 AI 开关状态
func (h *AdminHandler) Status(c *gin.Context) {
	s := h.cfg.Snapshot().AI
	c.JSON(http.StatusOK, gin.H{
		"enabled":     s.Enabled,
		"kill_switch": s.KillSwitch,
		"provider":    s.Provider,
	})
}

func (h *AdminHandler) Proposals(c *gin.Context) {
	proposals, err := h.advisor.Proposals(c.Request.Context())
	if err != nil {
		h.log.Error("load proposals failed", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to load proposals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": proposals})
}

func (h *AdminHandler) Incidents(c *gin.Context) {
	incidents, err := h.advisor.OpenIncidents(c.Request.Context())
	if err != nil {
		h.log.Error("load incidents failed", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to load incidents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents})
}

// Summary 生成主题摘要；eligible 表示帖子数已达到自动摘要阈值
func (h *AdminHandler) Summary(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	root, err := h.st.GetPost(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !root.IsRoot()) {
		jsonError(c, http.StatusNotFound, "Thread not found")
		return
	}
	if err != nil {
		h.log.Error("load thread failed", zap.Uint("thread_id", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to load thread")
		return
	}

	posts, err := h.st.ThreadPosts(ctx, root.ID, root.Language)
	if err != nil {
		h.log.Error("load thread posts failed", zap.Uint("thread_id", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to load thread")
		return
	}

	visible := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if !p.IsHidden {
			visible = append(visible, p)
		}
	}

	title := root.Title
	if title == "" {
		title = utils.Excerpt(root.Content, summaryTitleChars)
	}
	threshold := h.cfg.Snapshot().AI.SummaryThresholdPosts
	c.JSON(http.StatusOK, gin.H{
		"thread_id": root.ID,
		"posts":     len(posts),
		"threshold": threshold,
		"eligible":  len(posts) >= threshold,
		"summary":   h.summarizer.Summarize(ctx, title, visible),
	})
}
