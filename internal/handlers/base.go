package handlers

import (
	"net/http"
	"strings"

	"aibbs/internal/models"
	"aibbs/internal/utils"

	"github.com/gin-gonic/gin"
)

// 错误响应
func jsonError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// checkLang 校验板块语言，不存在时返回 404
func checkLang(c *gin.Context, raw string) (string, bool) {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if !models.ValidLanguage(lang) {
		jsonError(c, http.StatusNotFound, "lang not found")
		return "", false
	}
	return lang, true
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.StringToUint(c.Param(name))
	if !ok {
		jsonError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
