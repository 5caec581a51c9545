package xgeocache

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const flightShards = 16

// sharedFlight 是同一 key 上共享回源的父 context 与等待者计数。
// 最后一个等待者离开时取消 ctx，正在执行的回源随之放弃。
type sharedFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type flightShard struct {
	mu      sync.Mutex
	flights map[string]*sharedFlight
}

// flightRegistry 按 key 的 xxhash 分片记录进行中的共享回源。
type flightRegistry struct {
	shards [flightShards]flightShard
}

func (r *flightRegistry) shard(key string) *flightShard {
	return &r.shards[xxhash.Sum64String(key)%flightShards]
}

// join 为 key 登记一个等待者，首个等待者创建脱离调用方取消链的父 context。
func (r *flightRegistry) join(ctx context.Context, key string) *sharedFlight {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights == nil {
		s.flights = make(map[string]*sharedFlight)
	}
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(contextDetached(ctx))
		f = &sharedFlight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

// leave 注销一个等待者。最后一个等待者离开时移除登记、调用 forget 并取消父 context。
// forget 在分片锁内调用，此时 key 上不存在持有该 flight 的等待者。
func (r *flightRegistry) leave(key string, f *sharedFlight, forget func(string)) {
	s := r.shard(key)
	s.mu.Lock()
	f.waiters--
	last := f.waiters == 0
	if last && s.flights[key] == f {
		delete(s.flights, key)
		forget(key)
	}
	s.mu.Unlock()
	if last {
		f.cancel()
	}
}

// inFlight 返回 key 当前的等待者数。
func (r *flightRegistry) inFlight(key string) int {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flights[key]; ok {
		return f.waiters
	}
	return 0
}
