package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"aibbs/internal/ai/actions"
	"aibbs/internal/ai/chain"
	"aibbs/internal/ai/persona"
	"aibbs/internal/config"
	"aibbs/internal/metrics"
	"aibbs/internal/models"
	"aibbs/internal/store"
	"aibbs/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	previewChars   = 60
	contextPosts   = 8
	contextChars   = 1200
	maxURLs        = 2
	assistantName  = "Assistant"
	defaultName    = "Anonymous"
	deletedContent = "[Deleted by Admin]"
	deletedName    = "[Deleted]"
)

// ngWords 简单的垃圾词列表
var ngWords = []string{"buy crypto", "free bitcoin", "casino"}

type ReplyGenerator interface {
	Generate(ctx context.Context, req persona.Request) []persona.Reply
}

type Replier interface {
	CreateReply(ctx context.Context, p actions.ReplyParams) (*models.Post, error)
}

// ChainStarter 在后台继续 AI 对话
type ChainStarter interface {
	Submit(step chain.Step) bool
}

// PostScheduler 把新的用户帖子交给 orchestrator
type PostScheduler interface {
	Schedule(postID uint)
}

type BoardHandler struct {
	cfg       config.Provider
	st        *store.Store
	generator ReplyGenerator
	replier   Replier
	chain     ChainStarter
	scheduler PostScheduler
	log       *zap.Logger
	now       func() time.Time
}

func NewBoardHandler(cfg config.Provider, st *store.Store, generator ReplyGenerator, replier Replier, chain ChainStarter, scheduler PostScheduler, log *zap.Logger) *BoardHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BoardHandler{
		cfg:       cfg,
		st:        st,
		generator: generator,
		replier:   replier,
		chain:     chain,
		scheduler: scheduler,
		log:       log.Named("board"),
		now:       time.Now,
	}
}

// Healthz 健康检查
func (h *BoardHandler) Healthz(c *gin.Context) {
	n, err := h.st.CountPosts(c.Request.Context())
	if err != nil {
		h.log.Error("healthz count failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "db error\n")
		return
	}
	c.String(http.StatusOK, "ok posts=%d\n", n)
}

func (h *BoardHandler) Root(c *gin.Context) {
	c.Redirect(http.StatusFound, "/"+models.LangJP)
}

type threadSummary struct {
	ThreadID uint      `json:"thread_id"`
	Preview  string    `json:"preview"`
	Replies  int       `json:"replies"`
	LastAt   time.Time `json:"last_at"`
	Name     string    `json:"name"`
}

// ListThreads 板块首页：按最后活动时间倒序列出所有主题
func (h *BoardHandler) ListThreads(c *gin.Context) {
	lang, ok := checkLang(c, c.Param("lang"))
	if !ok {
		return
	}

	posts, err := h.st.LanguagePosts(c.Request.Context(), lang)
	if err != nil {
		h.log.Error("list threads failed", zap.String("lang", lang), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to load threads")
		return
	}

	byThread := make(map[uint]*threadSummary)
	threads := make([]*threadSummary, 0)
	for _, p := range posts {
		tid := p.RootID()
		item, ok := byThread[tid]
		if !ok {
			preview, name := p.Content, p.Name
			if p.IsHidden {
				preview, name = deletedContent, deletedName
			}
			item = &threadSummary{
				ThreadID: tid,
				Preview:  utils.Excerpt(preview, previewChars),
				LastAt:   p.CreatedAt,
				Name:     name,
			}
			byThread[tid] = item
			threads = append(threads, item)
			continue
		}
		item.Replies++
		if p.CreatedAt.After(item.LastAt) {
			item.LastAt = p.CreatedAt
		}
	}

	slices.SortStableFunc(threads, func(a, b *threadSummary) int {
		return b.LastAt.Compare(a.LastAt)
	})

	title := "JP Board"
	if lang == models.LangEN {
		title = "EN Board"
	}
	c.JSON(http.StatusOK, gin.H{
		"title":   title,
		"lang":    lang,
		"threads": threads,
	})
}

type postView struct {
	ID        uint      `json:"id"`
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	Persona   *string   `json:"persona,omitempty"`
	Content   string    `json:"content"`
	HTML      string    `json:"html"`
	PosterID  string    `json:"poster_id"`
	IsAI      bool      `json:"is_ai"`
	Depth     int       `json:"depth"`
	ReplyToID *uint     `json:"reply_to_id"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
}

type treeNode struct {
	Post     postView    `json:"post"`
	Children []*treeNode `json:"children"`
}

func newPostView(p models.Post) postView {
	v := postView{
		ID:        p.ID,
		Number:    p.Number,
		Name:      p.Name,
		Persona:   p.Persona,
		Content:   p.Content,
		PosterID:  p.PosterID,
		IsAI:      p.IsAI,
		Depth:     p.Depth,
		ReplyToID: p.ReplyToID,
		Hidden:    p.IsHidden,
		CreatedAt: p.CreatedAt,
	}
	if p.IsHidden {
		v.Content = deletedContent
		v.Name = deletedName
		v.Persona = nil
	}
	v.HTML = utils.RenderMarkdown(v.Content)
	return v
}

// buildTree 按回复关系组装成树，父帖不在列表中的作为根节点，每层按创建时间排序
func buildTree(posts []models.Post) []*treeNode {
	nodes := make(map[uint]*treeNode, len(posts))
	for _, p := range posts {
		nodes[p.ID] = &treeNode{Post: newPostView(p), Children: []*treeNode{}}
	}

	roots := make([]*treeNode, 0)
	for _, p := range posts {
		node := nodes[p.ID]
		if p.ReplyToID != nil && *p.ReplyToID != p.ID {
			if parent, ok := nodes[*p.ReplyToID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var sortLevel func([]*treeNode)
	sortLevel = func(level []*treeNode) {
		slices.SortStableFunc(level, func(a, b *treeNode) int {
			return a.Post.CreatedAt.Compare(b.Post.CreatedAt)
		})
		for _, n := range level {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)
	return roots
}

// Thread 主题详情，返回回复树
func (h *BoardHandler) Thread(c *gin.Context) {
	lang, ok := checkLang(c, c.Param("lang"))
	if !ok {
		return
	}
	tid, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	posts, err := h.st.ThreadPosts(ctx, tid, lang)
	if err != nil {
		h.log.Error("load thread failed", zap.Uint("thread_id", tid), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to load thread")
		return
	}
	if len(posts) == 0 {
		root, err := h.st.GetPostInLanguage(ctx, tid, lang)
		if err != nil {
			jsonError(c, http.StatusNotFound, "Thread not found")
			return
		}
		posts = []models.Post{*root}
	}

	locked := posts[0].IsLocked
	for _, p := range posts {
		if p.ID == tid {
			locked = p.IsLocked
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"title":     fmt.Sprintf("Thread %d", tid),
		"lang":      lang,
		"thread_id": tid,
		"locked":    locked,
		"posts":     len(posts),
		"tree":      buildTree(posts),
	})
}

// Create 处理发帖：垃圾检查、保存人类帖子、可选的 AI 回复，以及后台链式对话
func (h *BoardHandler) Create(c *gin.Context) {
	lang, ok := checkLang(c, c.DefaultPostForm("lang", models.LangJP))
	if !ok {
		return
	}
	ctx := c.Request.Context()
	settings := h.cfg.Snapshot()

	name := utils.TruncateRunes(strings.TrimSpace(utils.StripHTML(c.PostForm("name"))), models.MaxNameLength)
	if name == "" {
		name = defaultName
	}
	content := utils.TruncateRunes(strings.TrimSpace(utils.StripHTML(c.PostForm("content"))), models.MaxContentLength)

	if content == "" {
		c.Redirect(http.StatusSeeOther, "/"+lang)
		return
	}
	if utils.CountURLs(content) > maxURLs {
		jsonError(c, http.StatusBadRequest, "Too many URLs")
		return
	}
	lower := strings.ToLower(content)
	for _, w := range ngWords {
		if strings.Contains(lower, w) {
			jsonError(c, http.StatusBadRequest, "NG word detected")
			return
		}
	}

	now := h.now().UTC()
	post := &models.Post{
		Language:  lang,
		Name:      name,
		Content:   content,
		PosterID:  utils.PosterID(c.ClientIP(), c.Request.UserAgent(), settings.Secret, now),
		CreatedAt: now,
	}

	// 回复不存在的帖子时，作为新主题处理
	if parentID, ok := utils.StringToUint(c.PostForm("reply_to_id")); ok {
		parent, err := h.st.GetPostInLanguage(ctx, parentID, lang)
		switch {
		case err == nil:
			root, err := h.st.GetPost(ctx, parent.RootID())
			if err == nil && root.IsLocked {
				jsonError(c, http.StatusForbidden, "Thread is locked")
				return
			}
			tid := parent.RootID()
			post.ThreadID = &tid
			post.ReplyToID = &parent.ID
		case !errors.Is(err, store.ErrNotFound):
			h.log.Error("load parent failed", zap.Uint("parent_id", parentID), zap.Error(err))
		}
	}

	if err := h.st.CreateHumanPost(ctx, post); err != nil {
		h.log.Error("create post failed", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "failed to save post")
		return
	}
	metrics.PostsCreated.WithLabelValues("human").Inc()
	tid := post.RootID()
	h.log.Info("post created",
		zap.Uint("post_id", post.ID),
		zap.Uint("thread_id", tid),
		zap.String("lang", lang),
	)

	created := h.aiReplies(c, post, tid)
	if n := len(created); n > 0 && h.chain != nil {
		last := created[n-1]
		step := chain.Step{ThreadID: tid, ParentID: last.ID, Lang: lang, Depth: last.Depth}
		if last.GenID != nil {
			step.GenID = *last.GenID
		}
		if !h.chain.Submit(step) {
			h.log.Warn("chain step dropped", zap.Uint("thread_id", tid))
		}
	}

	if h.scheduler != nil {
		h.scheduler.Schedule(post.ID)
	}

	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/%s/t/%d", lang, tid))
}

// aiReplies 按表单要求立即生成人格回复，按创建顺序返回
func (h *BoardHandler) aiReplies(c *gin.Context, post *models.Post, tid uint) []*models.Post {
	specific := strings.TrimSpace(c.PostForm("ai_persona"))
	multi := utils.FormBool(c.PostForm("ai_multi"))
	single := utils.FormBool(c.PostForm("ai"))
	if specific == "" && !multi && !single {
		return nil
	}
	if h.generator == nil || h.replier == nil {
		return nil
	}
	// 急停开启时不再调用模型
	if h.cfg.Snapshot().AI.KillSwitch {
		h.log.Info("ai replies skipped by kill switch", zap.Uint("thread_id", tid))
		return nil
	}
	ctx := c.Request.Context()

	mode := models.ModeSingle
	switch {
	case specific != "":
		mode = models.ModeSpecific
	case multi:
		mode = models.ModeMulti
	}

	recent, err := h.st.RecentThreadPosts(ctx, tid, contextPosts)
	if err != nil {
		h.log.Warn("load reply context failed", zap.Uint("thread_id", tid), zap.Error(err))
	}
	replies := h.generator.Generate(ctx, persona.Request{
		Text:     post.Content,
		Lang:     post.Language,
		Context:  utils.TruncateRunes(persona.FormatContext(recent), contextChars),
		Persona:  specific,
		ThreadID: &tid,
		Mode:     mode,
	})
	if len(replies) == 0 {
		return nil
	}
	if mode != models.ModeMulti {
		replies = replies[:1]
	}

	genID := uuid.NewString()
	created := make([]*models.Post, 0, len(replies))
	for _, r := range replies {
		name := r.Persona
		if mode == models.ModeSingle {
			name = assistantName
		}
		p, err := h.replier.CreateReply(ctx, actions.ReplyParams{
			ThreadID:  tid,
			ReplyToID: post.ID,
			Persona:   name,
			Content:   r.Text,
			Depth:     1,
			GenID:     genID,
			Reason:    mode,
		})
		if err != nil {
			h.log.Warn("ai reply not created", zap.String("persona", name), zap.Error(err))
			continue
		}
		created = append(created, p)
	}
	return created
}
