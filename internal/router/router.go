package router

import (
	"aibbs/internal/config"
	"aibbs/internal/handlers"
	"aibbs/internal/metrics"
	"aibbs/internal/middleware"
	"aibbs/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Config      config.Provider
	Store       *store.Store
	Board       *handlers.BoardHandler
	Admin       *handlers.AdminHandler
	RateLimiter *middleware.RateLimiter
	Log         *zap.Logger
}

// New 创建 gin engine 并挂载通用中间件
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(d.Log), middleware.Recovery(d.Log))
	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	board := d.Board
	admin := d.Admin

	// 公共路由 (Public Routes)
	r.GET("/healthz", board.Healthz)                // 健康检查
	r.GET("/metrics", gin.WrapH(metrics.Handler())) // Prometheus 指标
	r.GET("/", board.Root)                          // 跳转到默认板块
	r.GET("/:lang", board.ListThreads)              // 主题列表
	r.GET("/:lang/t/:id", board.Thread)             // 主题详情（回复树）

	// 发帖 (Posting)
	post := []gin.HandlerFunc{middleware.RejectBanned(d.Store, d.Log)}
	if d.RateLimiter != nil {
		post = append(post, d.RateLimiter.Middleware())
	}
	post = append(post, board.Create)
	r.POST("/new", post...)

	// 管理路由 (Admin Routes)
	adm := r.Group("/admin")
	adm.Use(middleware.AdminRequired(d.Config))
	{
		adm.POST("/hide_post/:id", admin.HidePost)     // 隐藏帖子
		adm.POST("/lock_thread/:id", admin.LockThread) // 锁定主题
		adm.POST("/ban_ip", admin.BanIP)               // 封禁 IP

		adm.GET("/ai/status", admin.Status)            // AI 开关状态
		adm.POST("/ai/kill_switch", admin.KillSwitch)  // AI 急停
		adm.POST("/ai/enabled", admin.SetEnabled)      // 启用/停用 AI
		adm.GET("/ai/proposals", admin.Proposals)      // AI 改进建议
		adm.GET("/ai/incidents", admin.Incidents)      // 待处理事件
		adm.GET("/threads/:id/summary", admin.Summary) // 主题摘要
	}
}
