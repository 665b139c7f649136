package config

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks variables a developer shell may export; viper treats empty
// values as unset.
func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DB_DRIVER", "AI_ENABLED", "AI_KILL_SWITCH", "AI_PROVIDER",
		"AI_POSTS_PER_HOUR", "AI_REPLY_COOLDOWN_SECONDS", "AI_SUMMARY_THRESHOLD_POSTS",
		"AI_FLAG_THRESHOLD", "AI_CHAIN_MAX_DEPTH", "AI_SCHEDULER_INTERVAL"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	s := Load()

	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "sqlite", s.DBDriver)
	assert.False(t, s.AI.Enabled)
	assert.False(t, s.AI.KillSwitch)
	assert.Equal(t, "mock", s.AI.Provider)
	assert.Equal(t, 2, s.AI.PostsPerHour)
	assert.Equal(t, 600*time.Second, s.AI.ReplyCooldown)
	assert.Equal(t, 20, s.AI.SummaryThresholdPosts)
	assert.InDelta(t, 0.8, s.AI.FlagThreshold, 1e-9)
	assert.Equal(t, 4, s.AI.ChainMaxDepth)
	assert.Equal(t, time.Minute, s.AI.SchedulerInterval)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("AI_ENABLED", "true")
	t.Setenv("AI_PROVIDER", "OLLAMA")
	t.Setenv("AI_REPLY_COOLDOWN_SECONDS", "30")
	t.Setenv("AI_CHAIN_MAX_DEPTH", "99")
	t.Setenv("AI_CHAIN_DELAY", "500ms")

	s := Load()
	assert.Equal(t, "9000", s.Port)
	assert.Equal(t, "postgres", s.DBDriver)
	assert.True(t, s.AI.Enabled)
	assert.Equal(t, "ollama", s.AI.Provider)
	assert.Equal(t, 30*time.Second, s.AI.ReplyCooldown)
	assert.Equal(t, 10, s.AI.ChainMaxDepth)
	assert.Equal(t, 500*time.Millisecond, s.AI.ChainDelay)
}

func TestStoreToggles(t *testing.T) {
	st := NewStore(Settings{Port: "1"})
	before := st.Snapshot()

	st.SetKillSwitch(true)
	st.SetEnabled(true)

	after := st.Snapshot()
	assert.True(t, after.AI.KillSwitch)
	assert.True(t, after.AI.Enabled)
	assert.Equal(t, "1", after.Port)
	// earlier snapshots are not affected
	assert.False(t, before.AI.KillSwitch)
}

func TestStoreConcurrentUpdates(t *testing.T) {
	st := NewStore(Settings{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Update(func(s *Settings) { s.AI.PostsPerHour++ })
		}()
	}
	wg.Wait()
	require.Equal(t, 50, st.Snapshot().AI.PostsPerHour)
}

func TestStatic(t *testing.T) {
	var p Provider = Static{AdminToken: "x"}
	assert.Equal(t, "x", p.Snapshot().AdminToken)
}
