// Package workers 封装单一用途的 LLM 调用（审核、参与、摘要）。
// 后端出错或输出异常时返回安全的默认值。
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aibbs/internal/ai/llm"
	"aibbs/internal/ai/policy"
	"aibbs/internal/models"
	"aibbs/internal/utils"

	"go.uber.org/zap"
)

// ParseError 模型有回答，但不是要求的 JSON
type ParseError struct {
	Worker string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unparseable model output: %v", e.Worker, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Moderation 审核结果
type Moderation struct {
	Score  float64 `json:"score"`
	Flag   bool    `json:"flag"`
	Reason string  `json:"reason"`
}

// Engagement 是否参与讨论的判断
type Engagement struct {
	ShouldReply bool    `json:"should_reply"`
	ReplyText   string  `json:"reply_text"`
	Confidence  float64 `json:"confidence"`
}

// Workers 执行审核、参与、摘要三类提示词
type Workers struct {
	gw  llm.Gateway
	log *zap.Logger
}

func New(gw llm.Gateway, log *zap.Logger) *Workers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workers{gw: gw, log: log}
}

// Moderate 给帖子内容打分
func (w *Workers) Moderate(ctx context.Context, body string) Moderation {
	var m Moderation
	err := w.completeJSON(ctx, "moderation", llm.Request{
		System:      policy.ModerationSystem,
		Prompt:      policy.ModerationPrompt(body),
		Temperature: 0,
	}, &m)
	if err != nil {
		w.log.Warn("moderation worker failed", zap.Error(err))
		return Moderation{Score: 0, Flag: false, Reason: "Error"}
	}
	return m
}

// Engage 判断 AI 是否应该参与该主题
func (w *Workers) Engage(ctx context.Context, title string, posts []models.Post) Engagement {
	var e struct {
		ShouldReply bool    `json:"should_reply"`
		ReplyText   *string `json:"reply_text"`
		Confidence  float64 `json:"confidence"`
	}
	err := w.completeJSON(ctx, "engagement", llm.Request{
		System:      policy.EngagementSystem,
		Prompt:      policy.EngagementPrompt(title, posts),
		Temperature: 0.7,
	}, &e)
	if err != nil {
		w.log.Warn("engagement worker failed", zap.Error(err))
		return Engagement{}
	}

	out := Engagement{ShouldReply: e.ShouldReply, Confidence: e.Confidence}
	if e.ReplyText != nil {
		out.ReplyText = utils.TruncateRunes(strings.TrimSpace(*e.ReplyText), policy.MaxReplyLength)
	}
	if policy.ContainsForbidden(out.ReplyText) {
		w.log.Info("engagement reply dropped by forbidden word filter")
		return Engagement{}
	}
	return out
}

// Summarize 返回主题摘要，失败时返回空字符串
func (w *Workers) Summarize(ctx context.Context, title string, posts []models.Post) string {
	if len(posts) == 0 {
		return ""
	}
	out, err := w.gw.Complete(ctx, llm.Request{
		System:      policy.SummarySystem,
		Prompt:      policy.SummaryPrompt(title, posts),
		Temperature: 0.3,
	})
	if err != nil {
		w.log.Warn("summary worker failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(StripFences(out))
}

func (w *Workers) completeJSON(ctx context.Context, worker string, req llm.Request, v any) error {
	raw, err := w.gw.Complete(ctx, req)
	if err != nil {
		return err
	}
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Worker: worker, Raw: raw, Err: err}
	}
	return nil
}

// StripFences 去掉模型输出外层的 markdown 代码块
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
