package llm

import "strings"

// NewOllama 通过 OpenAI 兼容的 /v1 接口访问本地 Ollama，
// max_tokens 对应 Ollama 的 num_predict
func NewOllama(baseURL, model string) *OpenAI {
	o := NewOpenAI("ollama", strings.TrimRight(baseURL, "/")+"/v1", model)
	o.name = "ollama"
	o.topP = 0.9
	o.maxTokens = 256
	return o
}
