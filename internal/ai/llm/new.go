package llm

import (
	"strings"

	"aibbs/internal/config"

	"go.uber.org/zap"
)

// New 按配置创建后端，外层包熔断器和单次超时。
// provider 为 openai 但没有 key 时退回 Mock。
func New(cfg config.AISettings, log *zap.Logger) Gateway {
	if log == nil {
		log = zap.NewNop()
	}

	var g Gateway
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		g = NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	case "openai":
		if cfg.APIKey == "" {
			log.Warn("AI_PROVIDER=openai without AI_API_KEY, using mock back-end")
			g = Mock{}
		} else {
			g = NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
		}
	default:
		g = Mock{}
	}

	if _, ok := g.(Mock); !ok {
		g = NewBreaker(g, DefaultBreakerConfig(), log)
	}
	log.Info("llm gateway ready", zap.String("provider", g.Name()))
	return WithTimeout(g, cfg.Timeout, log)
}
