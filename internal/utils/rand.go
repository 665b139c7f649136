package utils

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rand 并发安全的随机数源，测试中固定种子以复现人格选择和链式回复
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRand(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeRand 以当前时间为种子
func NewTimeRand() *Rand {
	return NewRand(uint64(time.Now().UnixNano()))
}

// Float64 返回 [0, 1) 的随机数
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.r.Shuffle(n, swap)
}
