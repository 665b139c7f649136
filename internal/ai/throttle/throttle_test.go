package throttle

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"aibbs/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settings(perHour int, cooldown time.Duration) config.Static {
	return config.Static{AI: config.AISettings{PostsPerHour: perHour, ReplyCooldown: cooldown}}
}

func TestThreadCooldown(t *testing.T) {
	th := New(settings(10, time.Hour), nil, nil)
	ctx := context.Background()

	assert.True(t, th.Ready(ctx, 1))
	th.Record(ctx, 1)
	assert.False(t, th.Ready(ctx, 1))
	assert.True(t, th.Ready(ctx, 2))
}

func TestHourlyBudget(t *testing.T) {
	th := New(settings(2, 0), nil, nil)
	ctx := context.Background()

	th.Record(ctx, 1)
	assert.True(t, th.Ready(ctx, 2))
	th.Record(ctx, 2)
	assert.False(t, th.Ready(ctx, 3))
}

func TestZeroBudgetNeverReady(t *testing.T) {
	th := New(settings(0, 0), nil, nil)
	assert.False(t, th.Ready(context.Background(), 1))
}

type brokenCooldowns struct{}

func (brokenCooldowns) Active(context.Context, uint) (bool, error) {
	return false, errors.New("redis down")
}

func (brokenCooldowns) Mark(context.Context, uint, time.Duration) error {
	return errors.New("redis down")
}

func TestCooldownErrorFailsClosed(t *testing.T) {
	th := New(settings(5, time.Minute), brokenCooldowns{}, nil)
	assert.False(t, th.Ready(context.Background(), 1))
	assert.NotPanics(t, func() { th.Record(context.Background(), 1) })
}

func TestRedisCooldowns(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	r, err := NewRedisCooldowns(url)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	require.NoError(t, r.Ping(ctx))

	id := uint(time.Now().UnixNano() % 1_000_000)
	active, err := r.Active(ctx, id)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, r.Mark(ctx, id, time.Minute))
	active, err = r.Active(ctx, id)
	require.NoError(t, err)
	assert.True(t, active)
}
