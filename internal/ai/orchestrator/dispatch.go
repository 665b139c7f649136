package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher 在请求之外异步执行 OnNewPost
type Dispatcher struct {
	o       *Orchestrator
	timeout time.Duration

	queue   chan uint // 待处理的帖子 ID 队列
	pending map[uint]bool
	mu      sync.Mutex

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewDispatcher 启动一个后台 worker
func NewDispatcher(o *Orchestrator, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	d := &Dispatcher{
		o:       o,
		timeout: timeout,
		queue:   make(chan uint, size),
		pending: make(map[uint]bool),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Schedule 非阻塞入队，已在队列中的帖子跳过
func (d *Dispatcher) Schedule(postID uint) {
	d.mu.Lock()
	if d.pending[postID] {
		d.mu.Unlock()
		return
	}
	d.pending[postID] = true
	d.mu.Unlock()

	select {
	case d.queue <- postID:
	default:
		d.mu.Lock()
		delete(d.pending, postID)
		d.mu.Unlock()
		d.o.Log.Warn("orchestrator queue full, skipping post", zap.Uint("post_id", postID))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case postID := <-d.queue:
			d.handle(postID)
		}
	}
}

func (d *Dispatcher) handle(postID uint) {
	defer func() {
		d.mu.Lock()
		delete(d.pending, postID)
		d.mu.Unlock()
		if r := recover(); r != nil {
			d.o.Log.Error("orchestrator panicked", zap.Uint("post_id", postID), zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	d.o.OnNewPost(ctx, postID)
}

// Stop 等待处理中的帖子完成，队列中的直接丢弃。可重复调用
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}
