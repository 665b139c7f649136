package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"aibbs/internal/config"
	"aibbs/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminRequired rejects requests without the configured admin token.
func AdminRequired(cfg config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := cfg.Snapshot().AdminToken
		got := c.GetHeader(AdminTokenHeader)
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid Admin Token"})
			return
		}
		c.Next()
	}
}

// RejectBanned refuses clients whose IP has an active ban.
func RejectBanned(st *store.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		banned, err := st.IsBanned(c.Request.Context(), ip, time.Now().UTC())
		if err != nil {
			// a broken ban table must not take posting down
			log.Error("ban lookup failed", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}
		if banned {
			log.Info("rejected banned ip", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You are banned"})
			return
		}
		c.Next()
	}
}
