package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aibbs/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModeration(t *testing.T) {
	m := Mock{}
	ctx := context.Background()

	out, err := m.Complete(ctx, Request{System: "You are a moderator", Prompt: "this is toxic"})
	require.NoError(t, err)
	assert.Contains(t, out, `"flag": true`)
	assert.Contains(t, out, "0.9")

	out, err = m.Complete(ctx, Request{System: "You are a moderator", Prompt: "nice weather"})
	require.NoError(t, err)
	assert.Contains(t, out, `"flag": false`)

	out, err = m.Complete(ctx, Request{System: "You are a forum resident", Prompt: "hi"})
	require.NoError(t, err)
	assert.Contains(t, out, "should_reply")

	out, err = m.Complete(ctx, Request{Prompt: "anything"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

// chatServer answers like an OpenAI-compatible endpoint and hands the decoded
// request body to inspect.
func chatServer(t *testing.T, path, content string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, path, r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(body)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "x",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaComplete(t *testing.T) {
	// 模拟 Ollama 服务器
	server := chatServer(t, "/v1/chat/completions", "  こんにちは \n", func(body map[string]any) {
		assert.Equal(t, "llama3.1:8b", body["model"])
		msgs, ok := body["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.InDelta(t, 0.5, body["temperature"], 1e-6)
		assert.InDelta(t, 0.9, body["top_p"], 1e-6)
		assert.EqualValues(t, 180, body["max_tokens"])
		assert.EqualValues(t, 7, body["seed"])
	})

	seed := 7
	o := NewOllama(server.URL+"/", "llama3.1:8b")
	assert.Equal(t, "ollama", o.Name())
	out, err := o.Complete(context.Background(), Request{
		System:      "sys",
		Prompt:      "hi",
		Temperature: 0.5,
		MaxTokens:   180,
		Seed:        &seed,
	})
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", out)
}

func TestOllamaDefaults(t *testing.T) {
	server := chatServer(t, "/v1/chat/completions", "ok", func(body map[string]any) {
		assert.EqualValues(t, 256, body["max_tokens"])
		assert.InDelta(t, 0.9, body["top_p"], 1e-6)
		_, hasSeed := body["seed"]
		assert.False(t, hasSeed)
	})

	_, err := NewOllama(server.URL, "m").Complete(context.Background(), Request{Prompt: "hi", Temperature: 0.8})
	require.NoError(t, err)
}

func TestZeroTemperatureIsSent(t *testing.T) {
	server := chatServer(t, "/chat/completions", "ok", func(body map[string]any) {
		temp, ok := body["temperature"]
		require.True(t, ok, "temperature missing from request")
		assert.InDelta(t, 0, temp, 1e-6)
	})

	_, err := NewOpenAI("k", server.URL, "m").Complete(context.Background(), Request{Prompt: "p", Temperature: 0})
	require.NoError(t, err)
}

func TestOllamaStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllama(server.URL, "x").Complete(context.Background(), Request{Prompt: "hi"})
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindStatus, be.Kind)
	assert.Equal(t, http.StatusNotFound, be.StatusCode)
	assert.Equal(t, "ollama", be.Provider)
}

func TestOllamaMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewOllama(server.URL, "x").Complete(context.Background(), Request{Prompt: "hi"})
	assert.Equal(t, KindDecode, KindOf(err))
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "x",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
		})
	}))
	defer server.Close()

	o := NewOpenAI("test-token", server.URL, "test-model")
	out, err := o.Complete(context.Background(), Request{System: "s", Prompt: "p", Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	_, err := NewOpenAI("k", server.URL, "m").Complete(context.Background(), Request{Prompt: "p"})
	assert.Equal(t, KindEmpty, KindOf(err))
}

type failing struct{ calls int }

func (f *failing) Name() string { return "failing" }

func (f *failing) Complete(context.Context, Request) (string, error) {
	f.calls++
	return "", &BackendError{Provider: "failing", Kind: KindNetwork, Err: errors.New("boom")}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	inner := &failing{}
	b := NewBreaker(inner, BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, RetryTimeout: time.Minute}, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = b.Complete(ctx, Request{})
	_, _ = b.Complete(ctx, Request{})
	assert.Equal(t, StateOpen, b.State())

	_, err := b.Complete(ctx, Request{})
	assert.Equal(t, KindCircuitOpen, KindOf(err))
	assert.Equal(t, 2, inner.calls)

	// after the retry timeout one probe goes through; it fails and reopens
	now = now.Add(2 * time.Minute)
	_, err = b.Complete(ctx, Request{})
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, StateOpen, b.State())

	b.next = Mock{}
	now = now.Add(2 * time.Minute)
	_, err = b.Complete(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) Complete(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	g := WithTimeout(slow{}, 10*time.Millisecond, nil)
	_, err := g.Complete(context.Background(), Request{})
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestNewSelectsBackend(t *testing.T) {
	assert.Equal(t, "mock", New(config.AISettings{Provider: "mock"}, nil).Name())
	assert.Equal(t, "mock", New(config.AISettings{Provider: "openai"}, nil).Name())
	assert.Equal(t, "openai", New(config.AISettings{Provider: "openai", APIKey: "k"}, nil).Name())
	assert.Equal(t, "ollama", New(config.AISettings{Provider: "ollama", OllamaURL: "http://x"}, nil).Name())
}

func TestMockModerationIgnoresInstructions(t *testing.T) {
	prompt := "Analyze the following BBS post for toxicity.\nPost: \"good morning\""
	out, err := Mock{}.Complete(context.Background(), Request{System: "content moderator", Prompt: prompt})
	require.NoError(t, err)
	assert.Contains(t, out, `"flag": false`)
}
