package xgeocache

import (
	"fmt"
	"sync"
)

// workerPool 是有界的异步任务池：Submit 不阻塞，队列满时拒绝；
// stop 拒绝新任务并等待队列中已有任务处理完。
type workerPool[T any] struct {
	handler func(T)
	onPanic func(T, error)
	queue   chan T

	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

func newWorkerPool[T any](workers, queueSize int, handler func(T), onPanic func(T, error)) *workerPool[T] {
	p := &workerPool[T]{
		handler: handler,
		onPanic: onPanic,
		queue:   make(chan T, max(queueSize, 1)),
	}
	for range max(workers, 1) {
		p.wg.Go(p.worker)
	}
	return p
}

// worker 读取直到队列关闭，保证 stop 时剩余任务被处理完。
func (p *workerPool[T]) worker() {
	for task := range p.queue {
		p.run(task)
	}
}

func (p *workerPool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(task, fmt.Errorf("panic: %v", r))
		}
	}()
	p.handler(task)
}

// submit 非阻塞提交，池已停止或队列满时返回 false。
func (p *workerPool[T]) submit(task T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queue <- task:
		return true
	default:
		return false
	}
}

func (p *workerPool[T]) stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}
