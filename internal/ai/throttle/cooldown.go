package throttle

import (
	"context"
	"strconv"
	"time"

	"aibbs/internal/utils"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cooldowns 记录 AI 最近回复过的主题
type Cooldowns interface {
	Active(ctx context.Context, threadID uint) (bool, error)
	Mark(ctx context.Context, threadID uint, d time.Duration) error
}

// MemoryCooldowns 进程内冷却，适合单实例
type MemoryCooldowns struct {
	cache *utils.Cache[struct{}]
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{cache: utils.NewCache[struct{}](4096)}
}

func (m *MemoryCooldowns) Active(_ context.Context, threadID uint) (bool, error) {
	_, ok := m.cache.Get(threadKey(threadID))
	return ok, nil
}

func (m *MemoryCooldowns) Mark(_ context.Context, threadID uint, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	m.cache.Set(threadKey(threadID), struct{}{}, d)
	return nil
}

// RedisCooldowns 多实例共享冷却
type RedisCooldowns struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldowns 支持 redis:// URL 或 host:port
func NewRedisCooldowns(url string) (*RedisCooldowns, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return &RedisCooldowns{client: redis.NewClient(opts), prefix: "aibbs:cooldown:"}, nil
}

// Ping 检查连接
func (r *RedisCooldowns) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis ping")
}

func (r *RedisCooldowns) Close() error {
	return r.client.Close()
}

func (r *RedisCooldowns) Active(ctx context.Context, threadID uint) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+threadKey(threadID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}

func (r *RedisCooldowns) Mark(ctx context.Context, threadID uint, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	err := r.client.Set(ctx, r.prefix+threadKey(threadID), time.Now().Unix(), d).Err()
	return errors.Wrap(err, "redis set")
}

func threadKey(threadID uint) string {
	return "thread:" + strconv.FormatUint(uint64(threadID), 10)
}
