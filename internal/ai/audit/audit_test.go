package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"aibbs/internal/ai/audit"
	"aibbs/internal/models"
	"aibbs/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderPersists(t *testing.T) {
	s := storetest.New(t)
	r := audit.NewRecorder(s, nil)
	ctx := context.Background()

	r.Record(ctx, audit.Entry{
		Actor:     audit.ActorSystem,
		EventType: models.EventPostCreate,
		TargetID:  audit.PostTarget(7),
		Reason:    "Engagement",
		Payload:   map[string]any{"thread_id": 3, "score": 0.5, "ip": "1.2.3.4"},
		Content:   "hello",
	})

	logs, err := s.AuditLogs(ctx, models.EventPostCreate)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	got := logs[0]
	assert.Equal(t, "post:7", got.TargetID)
	require.NotNil(t, got.InputHash)
	assert.Equal(t, audit.Hash("hello"), *got.InputHash)
	assert.Nil(t, got.RuleID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.EqualValues(t, 3, payload["thread_id"])
	assert.NotContains(t, payload, "ip")
}

type brokenWriter struct{ calls int }

func (b *brokenWriter) CreateAuditLog(context.Context, *models.AuditLog) error {
	b.calls++
	return errors.New("disk full")
}

type panickingWriter struct{}

func (panickingWriter) CreateAuditLog(context.Context, *models.AuditLog) error {
	panic("driver bug")
}

func TestRecorderSwallowsFailures(t *testing.T) {
	w := &brokenWriter{}
	r := audit.NewRecorder(w, nil)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), audit.Entry{EventType: models.EventKillSwitch})
	})
	assert.Equal(t, 1, w.calls)

	assert.NotPanics(t, func() {
		audit.NewRecorder(panickingWriter{}, nil).Record(context.Background(), audit.Entry{})
	})
}

func TestBuild(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := audit.Build(audit.Entry{Actor: "a", EventType: "E", RuleID: "r1"}, at)
	assert.Equal(t, at, e.Timestamp)
	require.NotNil(t, e.RuleID)
	assert.Equal(t, "r1", *e.RuleID)
	assert.Nil(t, e.InputHash)
	assert.Nil(t, e.Payload)
}

func TestHash(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", audit.Hash("hello"))
}
