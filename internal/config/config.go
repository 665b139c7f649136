package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings 进程配置的不可变快照。
// 组件持有 Provider，使用时再调用 Snapshot，运行时开关（急停、启用）在下一次调用即生效
type Settings struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DBDriver    string // postgres 或 sqlite
	DatabaseURL string
	DBPath      string
	RedisURL    string

	AdminToken string
	Secret     string

	AI AISettings
}

// AISettings AI 编排核心读取的配置
type AISettings struct {
	Enabled    bool
	KillSwitch bool

	Provider    string // mock / ollama / openai
	Model       string
	APIKey      string
	BaseURL     string
	OllamaURL   string
	OllamaModel string
	Timeout     time.Duration

	PostsPerHour          int
	ReplyCooldown         time.Duration
	SummaryThresholdPosts int
	FlagThreshold         float64
	ChainMaxDepth         int
	ChainProbability      float64
	ChainDelay            time.Duration
	SchedulerInterval     time.Duration
	PersonaDir            string
}

// Provider 提供当前配置快照
type Provider interface {
	Snapshot() Settings
}

// Store 进程级 Provider，写入时整体替换快照
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore 使用初始快照创建
func NewStore(s Settings) *Store {
	st := &Store{}
	st.current.Store(&s)
	return st
}

// Snapshot 返回当前配置的副本
func (s *Store) Snapshot() Settings {
	return *s.current.Load()
}

// Update 在副本上执行 fn 后发布
func (s *Store) Update(fn func(*Settings)) Settings {
	for {
		old := s.current.Load()
		next := *old
		fn(&next)
		if s.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// SetKillSwitch 开关全局 AI 急停
func (s *Store) SetKillSwitch(on bool) {
	s.Update(func(st *Settings) { st.AI.KillSwitch = on })
}

// SetEnabled 开关 AI
func (s *Store) SetEnabled(on bool) {
	s.Update(func(st *Settings) { st.AI.Enabled = on })
}

// Static 固定配置，测试用
type Static Settings

func (s Static) Snapshot() Settings { return Settings(s) }

// Load 读取 .env（如存在）和环境变量
func Load() Settings {
	// .env 可选，环境变量优先
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return Settings{
		Port:        v.GetString("PORT"),
		Env:         v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
		DBDriver:    strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseURL: v.GetString("DATABASE_URL"),
		DBPath:      v.GetString("DB_PATH"),
		RedisURL:    v.GetString("REDIS_URL"),
		AdminToken:  v.GetString("ADMIN_TOKEN"),
		Secret:      v.GetString("BBS_SECRET"),
		AI: AISettings{
			Enabled:               v.GetBool("AI_ENABLED"),
			KillSwitch:            v.GetBool("AI_KILL_SWITCH"),
			Provider:              strings.ToLower(v.GetString("AI_PROVIDER")),
			Model:                 v.GetString("AI_MODEL"),
			APIKey:                v.GetString("AI_API_KEY"),
			BaseURL:               v.GetString("AI_BASE_URL"),
			OllamaURL:             v.GetString("OLLAMA_URL"),
			OllamaModel:           v.GetString("OLLAMA_MODEL"),
			Timeout:               v.GetDuration("AI_LLM_TIMEOUT"),
			PostsPerHour:          v.GetInt("AI_POSTS_PER_HOUR"),
			ReplyCooldown:         time.Duration(v.GetInt("AI_REPLY_COOLDOWN_SECONDS")) * time.Second,
			SummaryThresholdPosts: v.GetInt("AI_SUMMARY_THRESHOLD_POSTS"),
			FlagThreshold:         v.GetFloat64("AI_FLAG_THRESHOLD"),
			ChainMaxDepth:         clamp(v.GetInt("AI_CHAIN_MAX_DEPTH"), 1, 10),
			ChainProbability:      v.GetFloat64("AI_CHAIN_PROBABILITY"),
			ChainDelay:            v.GetDuration("AI_CHAIN_DELAY"),
			SchedulerInterval:     v.GetDuration("AI_SCHEDULER_INTERVAL"),
			PersonaDir:            v.GetString("PERSONA_DIR"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "bbs.sqlite3")
	v.SetDefault("ADMIN_TOKEN", "changeme")
	v.SetDefault("BBS_SECRET", "dev_secret")

	v.SetDefault("AI_ENABLED", false)
	v.SetDefault("AI_KILL_SWITCH", false)
	v.SetDefault("AI_PROVIDER", "mock")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("OLLAMA_URL", "http://127.0.0.1:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3.1:8b")
	v.SetDefault("AI_LLM_TIMEOUT", 30*time.Second)
	v.SetDefault("AI_POSTS_PER_HOUR", 2)
	v.SetDefault("AI_REPLY_COOLDOWN_SECONDS", 600)
	v.SetDefault("AI_SUMMARY_THRESHOLD_POSTS", 20)
	v.SetDefault("AI_FLAG_THRESHOLD", 0.80)
	v.SetDefault("AI_CHAIN_MAX_DEPTH", 4)
	v.SetDefault("AI_CHAIN_PROBABILITY", 0.3)
	v.SetDefault("AI_CHAIN_DELAY", 2*time.Second)
	v.SetDefault("AI_SCHEDULER_INTERVAL", 60*time.Second)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
