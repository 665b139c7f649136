package actions

import (
	"context"
	"errors"
	"testing"

	"aibbs/internal/ai/audit"
	"aibbs/internal/config"
	"aibbs/internal/models"
	"aibbs/internal/store"
	"aibbs/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	st  *store.Store
	cfg *config.Store
	act *Actions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.New(t)
	cfg := config.NewStore(config.Settings{AI: config.AISettings{Enabled: true}})
	return &fixture{
		st:  st,
		cfg: cfg,
		act: New(st, cfg, audit.NewRecorder(st, nil), nil),
	}
}

// thread creates a root plus replies so that the last number is n.
func (f *fixture) thread(t *testing.T, n int) *models.Post {
	t.Helper()
	ctx := context.Background()
	root := &models.Post{Language: models.LangEN, Name: "anon", Content: "root", PosterID: "p"}
	require.NoError(t, f.st.CreateHumanPost(ctx, root))
	for i := 1; i < n; i++ {
		reply := &models.Post{Language: models.LangEN, Name: "anon", Content: "r", PosterID: "p", ThreadID: root.ThreadID, ReplyToID: &root.ID}
		require.NoError(t, f.st.CreateHumanPost(ctx, reply))
	}
	return root
}

func (f *fixture) audits(t *testing.T, eventType string) []models.AuditLog {
	t.Helper()
	logs, err := f.st.AuditLogs(context.Background(), eventType)
	require.NoError(t, err)
	return logs
}

func TestCreatePostNextNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 4)

	ok := f.act.CreatePost(ctx, root.ID, "reply body", "user", 0.5, "Engagement")
	require.True(t, ok)

	posts, err := f.st.LatestByNumber(ctx, root.ID, 1)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	p := posts[0]
	assert.Equal(t, 5, p.Number)
	assert.True(t, p.IsAI)
	assert.Equal(t, "AI (user)", p.Name)
	assert.Equal(t, models.AIPosterID, p.PosterID)
	assert.Equal(t, 1, p.Depth)
	require.NotNil(t, p.ReplyToID)
	assert.Equal(t, root.ID, *p.ReplyToID)
	require.NotNil(t, p.AIScore)
	assert.Equal(t, 0.5, *p.AIScore)
	assert.Equal(t, models.LangEN, p.Language)

	created := f.audits(t, models.EventPostCreate)
	require.Len(t, created, 1)
	assert.Equal(t, audit.PostTarget(p.ID), created[0].TargetID)
	assert.Equal(t, "user", created[0].Actor)
	require.NotNil(t, created[0].InputHash)
	assert.Equal(t, audit.Hash("reply body"), *created[0].InputHash)
}

func TestCreatePostNumbersStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 1)

	for i := 0; i < 5; i++ {
		require.True(t, f.act.CreatePost(ctx, root.ID, "x", "user", 0.1, "Engagement"))
	}

	posts, err := f.st.LatestByNumber(ctx, root.ID, 100)
	require.NoError(t, err)
	require.Len(t, posts, 6)
	for i, p := range posts {
		assert.Equal(t, i+1, p.Number)
	}
}

func TestKillSwitchBlocksEveryAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 1)
	f.cfg.SetKillSwitch(true)

	assert.False(t, f.act.CreatePost(ctx, root.ID, "x", "user", 0.5, "Engagement"))
	assert.Len(t, f.audits(t, models.EventKillSwitch), 1)

	assert.False(t, f.act.FlagPost(ctx, root.ID, "toxic", 0.9))
	assert.Len(t, f.audits(t, models.EventKillSwitch), 2)

	_, err := f.act.CreateReply(ctx, ReplyParams{ThreadID: root.ID, ReplyToID: root.ID, Persona: "A", Content: "x", Depth: 2})
	assert.ErrorIs(t, err, ErrKillSwitch)

	kills := f.audits(t, models.EventKillSwitch)
	require.Len(t, kills, 3)
	assert.Equal(t, audit.ActorSystem, kills[0].Actor)
	assert.Equal(t, "create_post", kills[0].TargetID)
	assert.Equal(t, "flag_post", kills[1].TargetID)
	assert.Equal(t, "create_reply", kills[2].TargetID)

	n, err := f.st.CountThreadPosts(ctx, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, f.audits(t, models.EventPostCreate))
	assert.Empty(t, f.audits(t, models.EventPostFlag))
}

func TestCreatePostLockedOrMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 2)

	assert.False(t, f.act.CreatePost(ctx, 9999, "x", "user", 0.5, "Engagement"))

	_, err := f.st.SetLocked(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, f.act.CreatePost(ctx, root.ID, "x", "user", 0.5, "Engagement"))

	n, err := f.st.CountThreadPosts(ctx, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Empty(t, f.audits(t, models.EventPostCreate))
}

func TestFlagPostOnlyAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 1)

	require.True(t, f.act.FlagPost(ctx, root.ID, "Mock detected toxicity", 0.9))

	flags := f.audits(t, models.EventPostFlag)
	require.Len(t, flags, 1)
	assert.Equal(t, audit.ActorModerator, flags[0].Actor)
	assert.Equal(t, audit.PostTarget(root.ID), flags[0].TargetID)

	got, err := f.st.GetPost(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, got.IsHidden)
}

func TestCreateReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 2)

	post, err := f.act.CreateReply(ctx, ReplyParams{
		ThreadID:  root.ID,
		ReplyToID: root.ID,
		Persona:   "検証班",
		Content:   "<b>ソースは?</b>",
		Depth:     2,
		GenID:     "gen-1",
		Reason:    models.ModeChain,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, post.Number)
	assert.Equal(t, 2, post.Depth)
	assert.Equal(t, "ソースは?", post.Content)
	require.NotNil(t, post.GenID)
	assert.Equal(t, "gen-1", *post.GenID)
	require.NotNil(t, post.Persona)
	assert.Equal(t, "検証班", *post.Persona)
	assert.Len(t, f.audits(t, models.EventPostCreate), 1)
}

func TestCreateReplyParentMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.thread(t, 1)
	b := f.thread(t, 1)

	_, err := f.act.CreateReply(ctx, ReplyParams{ThreadID: a.ID, ReplyToID: b.ID, Persona: "x", Content: "y", Depth: 1})
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.ErrorIs(t, err, ErrParentMismatch)
	assert.Equal(t, "create_reply", blocked.Action)

	_, err = f.act.CreateReply(ctx, ReplyParams{ThreadID: a.ID, ReplyToID: 777, Persona: "x", Content: "y", Depth: 1})
	assert.ErrorIs(t, err, ErrParentMismatch)
}

func TestCreateReplyLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 1)
	_, err := f.st.SetLocked(ctx, root.ID)
	require.NoError(t, err)

	_, err = f.act.CreateReply(ctx, ReplyParams{ThreadID: root.ID, ReplyToID: root.ID, Persona: "x", Content: "y", Depth: 1})
	assert.ErrorIs(t, err, ErrThreadLocked)
}

type brokenWriter struct{}

func (brokenWriter) CreateAuditLog(context.Context, *models.AuditLog) error {
	return errors.New("audit table gone")
}

func TestAuditFailureDoesNotBlockAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.thread(t, 1)
	act := New(f.st, f.cfg, audit.NewRecorder(brokenWriter{}, nil), nil)

	require.True(t, act.CreatePost(ctx, root.ID, "still posted", "user", 0.3, "Engagement"))
	require.True(t, act.FlagPost(ctx, root.ID, "meh", 0.9))

	n, err := f.st.CountThreadPosts(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
