package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAI 调用任意 OpenAI 兼容的 chat completion 接口
type OpenAI struct {
	client *openai.Client
	model  string
	name   string

	// 请求未设置时使用的默认值
	topP      float64
	maxTokens int
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig), model: model, name: "openai"}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	temperature := float32(req.Temperature)
	if temperature == 0 {
		// go-openai 会因 omitempty 丢掉 0 温度
		temperature = math.SmallestNonzeroFloat32
	}
	topP := req.TopP
	if topP == 0 {
		topP = o.topP
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.maxTokens
	}

	creq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: temperature,
		TopP:        float32(topP),
		MaxTokens:   maxTokens,
		Seed:        req.Seed,
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Provider: o.Name(), Kind: KindEmpty, Err: errors.New("empty chat response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) classify(err error) *BackendError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{Provider: o.Name(), Kind: KindStatus, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &BackendError{Provider: o.Name(), Kind: KindStatus, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &BackendError{Provider: o.Name(), Kind: KindDecode, Err: err}
	}
	return backendError(o.Name(), err)
}
