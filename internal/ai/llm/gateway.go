// Package llm 对接语言模型后端，只返回纯文本，结构化输出由调用方自行解析。
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request 一次补全请求
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Seed        *int
}

// Gateway 语言模型后端
type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// BackendError 的错误类型
const (
	KindTimeout     = "Timeout"
	KindNetwork     = "NetworkError"
	KindStatus      = "HTTPStatusError"
	KindDecode      = "DecodeError"
	KindEmpty       = "EmptyResponse"
	KindCircuitOpen = "CircuitOpen"
)

// BackendError 后端失败时统一返回
type BackendError struct {
	Provider   string
	Kind       string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// KindOf 返回错误类型名，用于占位回复和日志
func KindOf(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return "Error"
}

func backendError(provider string, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &BackendError{Provider: provider, Kind: kind, Err: err}
}
