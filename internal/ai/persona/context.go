package persona

import (
	"strings"

	"aibbs/internal/models"
	"aibbs/internal/utils"
)

const contextExcerpt = 200

// FormatContext 把帖子渲染成 "name: text" 行作为主题上下文，跳过已隐藏的帖子
func FormatContext(posts []models.Post) string {
	var b strings.Builder
	for _, p := range posts {
		if p.IsHidden {
			continue
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(utils.Excerpt(p.Content, contextExcerpt))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
