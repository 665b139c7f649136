// Package policy AI worker 使用的固定规则和提示词模板
package policy

import (
	"fmt"
	"strings"
	"unicode"

	"aibbs/internal/models"
	"aibbs/internal/utils"
)

const (
	// MaxReplyLength 参与回复的最大长度
	MaxReplyLength = 300

	moderationExcerpt = 1000
	postExcerpt       = 200
)

// ForbiddenWords 提到破坏性操作的回复会被丢弃
var ForbiddenWords = map[string]struct{}{"delete": {}, "ban": {}, "kill": {}}

// ContainsForbidden 按整词判断是否包含禁用词，忽略大小写。
// "skill"、"banana" 不算命中
func ContainsForbidden(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := ForbiddenWords[w]; ok {
			return true
		}
	}
	return false
}

const (
	ModerationSystem = "You are a content moderator for a BBS."
	EngagementSystem = "You are a helpful and witty BBS resident."
	SummarySystem    = "You summarize BBS threads for the board admins."
)

func ModerationPrompt(body string) string {
	return fmt.Sprintf(`Analyze the following BBS post for toxicity, spam, and policy violations.
Return strictly valid JSON: {"score": float (0-1), "flag": bool, "reason": "short string"}

Post: %q
`, utils.TruncateRunes(body, moderationExcerpt))
}

func EngagementPrompt(title string, posts []models.Post) string {
	return fmt.Sprintf(`You are a participant in a threaded bulletin board.
Thread Title: %s

Context:
%s

Decide if you should reply to add value. Do not reply if the conversation is closed or low quality.
Return strictly valid JSON: {"should_reply": bool, "reply_text": "string (or null)", "confidence": float}
`, title, contextLines(posts))
}

func SummaryPrompt(title string, posts []models.Post) string {
	return fmt.Sprintf(`Thread Title: %s

Posts:
%s

Summarize the discussion in at most three sentences, in the language the posts are written in.
Return plain text only.
`, title, contextLines(posts))
}

func contextLines(posts []models.Post) string {
	lines := make([]string, 0, len(posts))
	for _, p := range posts {
		lines = append(lines, fmt.Sprintf("%d: %s", p.ID, utils.TruncateRunes(p.Content, postExcerpt)))
	}
	return strings.Join(lines, "\n")
}
