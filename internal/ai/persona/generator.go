package persona

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aibbs/internal/ai/llm"
	"aibbs/internal/metrics"
	"aibbs/internal/models"
	"aibbs/internal/utils"

	"go.uber.org/zap"
)

// MaxReplyChars 生成回复的最大字数
const MaxReplyChars = 500

// Request 针对一条帖子请求人格回复
type Request struct {
	Text     string
	Lang     string
	Context  string // 已格式化的最近帖子
	Persona  string // 指定后只由该人格回复
	ThreadID *uint
	Mode     string // 记录到 AIEvent，为空时根据 Persona 推断
}

// Reply 单个人格的回复
type Reply struct {
	Persona string
	Text    string
}

// EventRecorder 保存每次生成记录
type EventRecorder interface {
	CreateAIEvent(ctx context.Context, ev *models.AIEvent) error
}

// Generator 由多个人格生成短回复
type Generator struct {
	gw       llm.Gateway
	catalogs Source
	events   EventRecorder
	rnd      *utils.Rand
	log      *zap.Logger
}

func NewGenerator(gw llm.Gateway, catalogs Source, events EventRecorder, rnd *utils.Rand, log *zap.Logger) *Generator {
	if rnd == nil {
		rnd = utils.NewTimeRand()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{gw: gw, catalogs: catalogs, events: events, rnd: rnd, log: log}
}

// Generate 不会返回错误：后端错误变成占位回复，其他错误返回空列表
func (g *Generator) Generate(ctx context.Context, req Request) (replies []Reply) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("persona generation panicked", zap.Any("panic", r))
			replies = []Reply{}
		}
	}()

	out, err := g.generate(ctx, req)
	if err != nil {
		g.log.Error("persona generation failed", zap.Error(err))
		return []Reply{}
	}
	g.log.Info("persona replies generated", zap.Int("count", len(out)), zap.String("lang", req.Lang))
	return out
}

func (g *Generator) generate(ctx context.Context, req Request) ([]Reply, error) {
	text := strings.TrimSpace(req.Text)
	en := req.Lang == models.LangEN
	if text == "" {
		name := "風吹けば名無し"
		if en {
			name = "Anon"
		}
		return []Reply{{Persona: name, Text: "(empty)"}}, nil
	}

	catalog, err := g.catalogs.Load(req.Lang)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeMulti
		if req.Persona != "" {
			mode = models.ModeSpecific
		}
	}
	picked := g.pick(catalog, req.Persona, mode)

	replies := make([]Reply, 0, len(picked))
	for _, p := range picked {
		reply := g.ask(ctx, req, p, catalog.Settings, mode, text, en)
		replies = append(replies, reply)
	}
	return replies, nil
}

// pick 选出回复的人格，只有 multi 模式会选多个。
// 不能原地打乱缓存中的切片
func (g *Generator) pick(c *Catalog, specific, mode string) []Persona {
	if specific != "" {
		if p, ok := c.Find(specific); ok {
			return []Persona{p}
		}
	}

	pool := append([]Persona(nil), c.Personas...)
	if len(pool) == 0 {
		return []Persona{{Name: "Anon", Role: "short reply"}}
	}
	g.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	n := c.Settings.MaxReplies
	if specific != "" || mode == models.ModeSingle || mode == models.ModeChain {
		n = 1
	}
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

func (g *Generator) ask(ctx context.Context, req Request, p Persona, s Settings, mode, text string, en bool) Reply {
	temperature := s.Temperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	maxTokens := s.NumPredict
	if p.MaxTokens != nil {
		maxTokens = *p.MaxTokens
	}

	name := p.Name
	if name == "" {
		name = "名無し"
		if en {
			name = "Anon"
		}
	}

	ev := &models.AIEvent{ThreadID: req.ThreadID, Mode: mode, Persona: name}
	start := time.Now()
	out, err := g.gw.Complete(ctx, llm.Request{
		System:      systemPrompt(p.Role, en),
		Prompt:      userPrompt(req.Context, text),
		Temperature: temperature,
		TopP:        0.9,
		MaxTokens:   maxTokens,
	})
	ev.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		msg := err.Error()
		ev.Error = &msg
		out = errorPlaceholder(llm.KindOf(err), en)
		g.log.Warn("persona reply failed", zap.String("persona", name), zap.Error(err))
	} else {
		ev.OK = true
		if strings.TrimSpace(out) == "" {
			out = "草"
			if en {
				out = "lol"
			}
		}
	}
	metrics.Generations.WithLabelValues(mode, metrics.OK(ev.OK)).Inc()

	if g.events != nil {
		if err := g.events.CreateAIEvent(ctx, ev); err != nil {
			g.log.Error("failed to record ai event", zap.String("persona", name), zap.Error(err))
		}
	}

	return Reply{Persona: name, Text: utils.TruncateRunes(strings.TrimSpace(out), MaxReplyChars)}
}

func errorPlaceholder(kind string, en bool) string {
	if en {
		return fmt.Sprintf("(AI error: %s)", kind)
	}
	return fmt.Sprintf("（AIエラー: %s）", kind)
}

func systemPrompt(role string, en bool) string {
	if en {
		return "You are an anonymous message board user.\n" +
			"Write in English only. Short 1-3 lines. Internet-forum vibe. " +
			"No hate, no harassment, no illegal instructions, no personal data requests.\n" +
			"Your role: " + role + "\n"
	}
	return "あなたは匿名掲示板の書き込み常連。\n" +
		"日本語のみ。短文1〜3行。2chっぽい空気。ただし差別/誹謗中傷/違法助言/個人情報の要求は禁止。\n" +
		"あなたの役割: " + role + "\n"
}

func userPrompt(threadContext, text string) string {
	return "(THREAD CONTEXT)\n" + threadContext + "\n\n(POST)\n" + text + "\n\nREPLY:\n"
}
