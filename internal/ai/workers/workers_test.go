package workers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aibbs/internal/ai/llm"
	"aibbs/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type canned struct {
	out  string
	err  error
	last llm.Request
}

func (c *canned) Name() string { return "canned" }

func (c *canned) Complete(_ context.Context, req llm.Request) (string, error) {
	c.last = req
	return c.out, c.err
}

func TestModerate(t *testing.T) {
	gw := &canned{out: "```json\n{\"score\": 0.95, \"flag\": true, \"reason\": \"spam\"}\n```"}
	m := New(gw, nil).Moderate(context.Background(), "buy now")

	assert.Equal(t, Moderation{Score: 0.95, Flag: true, Reason: "spam"}, m)
	assert.Equal(t, 0.0, gw.last.Temperature)
	assert.Contains(t, gw.last.System, "moderator")
}

func TestModerateFailSafe(t *testing.T) {
	safe := Moderation{Score: 0, Flag: false, Reason: "Error"}

	m := New(&canned{err: &llm.BackendError{Kind: llm.KindTimeout, Err: errors.New("x")}}, nil).Moderate(context.Background(), "x")
	assert.Equal(t, safe, m)

	m = New(&canned{out: "I think it's fine"}, nil).Moderate(context.Background(), "x")
	assert.Equal(t, safe, m)
}

func TestModerateWithMock(t *testing.T) {
	w := New(llm.Mock{}, nil)
	assert.True(t, w.Moderate(context.Background(), "you are toxic").Flag)
	assert.False(t, w.Moderate(context.Background(), "hello").Flag)
}

func TestEngage(t *testing.T) {
	gw := &canned{out: `{"should_reply": true, "reply_text": "  good point  ", "confidence": 0.7}`}
	e := New(gw, nil).Engage(context.Background(), "T", []models.Post{{ID: 1, Content: "hi"}})

	assert.Equal(t, Engagement{ShouldReply: true, ReplyText: "good point", Confidence: 0.7}, e)
	assert.Equal(t, 0.7, gw.last.Temperature)
}

func TestEngageNullReplyAndClamp(t *testing.T) {
	e := New(&canned{out: `{"should_reply": false, "reply_text": null, "confidence": 0.1}`}, nil).
		Engage(context.Background(), "T", nil)
	assert.False(t, e.ShouldReply)
	assert.Empty(t, e.ReplyText)

	long := strings.Repeat("a", 400)
	e = New(&canned{out: `{"should_reply": true, "reply_text": "` + long + `", "confidence": 1}`}, nil).
		Engage(context.Background(), "T", nil)
	assert.Len(t, e.ReplyText, 300)
}

func TestEngageForbiddenWord(t *testing.T) {
	e := New(&canned{out: `{"should_reply": true, "reply_text": "just delete it", "confidence": 0.9}`}, nil).
		Engage(context.Background(), "T", nil)
	assert.Equal(t, Engagement{}, e)
}

func TestEngageKeepsWordsContainingForbidden(t *testing.T) {
	e := New(&canned{out: `{"should_reply": true, "reply_text": "skill issue, eat a banana", "confidence": 0.9}`}, nil).
		Engage(context.Background(), "T", nil)
	assert.True(t, e.ShouldReply)
	assert.Equal(t, "skill issue, eat a banana", e.ReplyText)
}

func TestEngageFailSafe(t *testing.T) {
	e := New(&canned{out: "{not json"}, nil).Engage(context.Background(), "T", nil)
	assert.Equal(t, Engagement{}, e)
}

func TestSummarize(t *testing.T) {
	posts := []models.Post{{ID: 1, Content: "a"}}

	assert.Equal(t, "short summary", New(&canned{out: " short summary "}, nil).Summarize(context.Background(), "T", posts))
	assert.Equal(t, "", New(&canned{err: errors.New("down")}, nil).Summarize(context.Background(), "T", posts))
	assert.Equal(t, "", New(&canned{out: "x"}, nil).Summarize(context.Background(), "T", nil))
}

func TestParseErrorUnwraps(t *testing.T) {
	w := New(&canned{out: "nope"}, nil)
	var m Moderation
	err := w.completeJSON(context.Background(), "moderation", llm.Request{}, &m)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "moderation", pe.Worker)
	assert.Equal(t, "nope", pe.Raw)
}
