package storageopt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SlowQueryHook 慢查询同步回调钩子，在请求路径上执行。
//
// ⚠️  钩子耗时直接计入查询延迟，耗时操作请使用 AsyncSlowQueryHook。
type SlowQueryHook[T any] func(ctx context.Context, info T)

// AsyncSlowQueryHook 慢查询异步回调钩子。
// 由内部 worker 执行，不接收 context：异步执行时原始 context 可能已取消。
type AsyncSlowQueryHook[T any] func(info T)

// SlowQueryOptions 慢查询检测配置。
type SlowQueryOptions[T any] struct {
	// Threshold 慢查询阈值，为 0 时禁用检测。
	Threshold time.Duration

	// SyncHook 同步回调钩子。
	SyncHook SlowQueryHook[T]

	// AsyncHook 异步回调钩子。与 SyncHook 同时设置时两者都会被调用。
	AsyncHook AsyncSlowQueryHook[T]

	// AsyncWorkers 异步 worker 数量，默认为 DefaultAsyncWorkers。
	AsyncWorkers int

	// AsyncQueueSize 异步任务队列大小，默认为 DefaultAsyncQueueSize。
	// 队列满时新任务被丢弃。
	AsyncQueueSize int
}

// 默认值常量。
const (
	DefaultAsyncWorkers   = 2
	DefaultAsyncQueueSize = 256

	maxAsyncWorkers   = 64
	maxAsyncQueueSize = 1 << 16
)

// ErrInvalidSlowQueryOptions 表示异步 worker 或队列参数超出范围。
var ErrInvalidSlowQueryOptions = errors.New("storageopt: invalid slow query options")

// SlowQueryDetector 慢查询检测器，封装同步/异步钩子的调用逻辑。
type SlowQueryDetector[T any] struct {
	options SlowQueryOptions[T]

	mu     sync.RWMutex
	queue  chan T
	closed bool
	wg     sync.WaitGroup
}

// NewSlowQueryDetector 创建慢查询检测器。
// AsyncHook 不为 nil 时立即启动 worker；参数越界时返回 ErrInvalidSlowQueryOptions。
func NewSlowQueryDetector[T any](opts SlowQueryOptions[T]) (*SlowQueryDetector[T], error) {
	if opts.AsyncWorkers <= 0 {
		opts.AsyncWorkers = DefaultAsyncWorkers
	}
	if opts.AsyncQueueSize <= 0 {
		opts.AsyncQueueSize = DefaultAsyncQueueSize
	}
	if opts.AsyncWorkers > maxAsyncWorkers || opts.AsyncQueueSize > maxAsyncQueueSize {
		return nil, ErrInvalidSlowQueryOptions
	}

	d := &SlowQueryDetector[T]{options: opts}
	if opts.AsyncHook != nil {
		d.queue = make(chan T, opts.AsyncQueueSize)
		d.wg.Add(opts.AsyncWorkers)
		for range opts.AsyncWorkers {
			go d.worker()
		}
	}
	return d, nil
}

func (d *SlowQueryDetector[T]) worker() {
	defer d.wg.Done()
	for info := range d.queue {
		d.runAsync(info)
	}
}

func (d *SlowQueryDetector[T]) runAsync(info T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("storageopt: slow query hook panic recovered", "panic", r)
		}
	}()
	d.options.AsyncHook(info)
}

// MaybeSlowQuery 在 duration >= Threshold 时触发钩子，返回是否触发。
func (d *SlowQueryDetector[T]) MaybeSlowQuery(ctx context.Context, info T, duration time.Duration) bool {
	if d == nil || d.options.Threshold <= 0 || duration < d.options.Threshold {
		return false
	}

	if d.options.SyncHook != nil {
		d.options.SyncHook(ctx, info)
	}

	d.mu.RLock()
	if !d.closed && d.queue != nil {
		select {
		case d.queue <- info:
		default:
			// 队列满，丢弃通知
		}
	}
	d.mu.RUnlock()

	return true
}

// Close 停止接收新任务，等待已入队的异步钩子执行完毕。可重复调用。
func (d *SlowQueryDetector[T]) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
