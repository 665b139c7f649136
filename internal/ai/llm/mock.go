package llm

import (
	"context"
	"strings"
)

// Mock 按提示词关键字返回固定答案，不会失败
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Complete(_ context.Context, req Request) (string, error) {
	system := strings.ToLower(req.System)
	prompt := strings.ToLower(req.Prompt)

	switch {
	case strings.Contains(system, "moderator"):
		// 只看引用的帖子，指令本身也提到了 toxic
		if i := strings.LastIndex(prompt, "post:"); i >= 0 {
			prompt = prompt[i:]
		}
		if strings.Contains(prompt, "toxic") || strings.Contains(prompt, "ban") {
			return `{"score": 0.9, "flag": true, "reason": "Mock detected toxicity"}`, nil
		}
		return `{"score": 0.1, "flag": false, "reason": "Safe"}`, nil
	case strings.Contains(system, "resident"):
		return `{"should_reply": true, "reply_text": "This is a mock AI reply.", "confidence": 0.8}`, nil
	default:
		return "mock reply, interesting thread", nil
	}
}
