package xwarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// LockHandle 是一次成功获取的集群锁。
type LockHandle interface {
	// Extend 把锁的过期时间重置为获取时的 TTL。
	Extend(ctx context.Context) error
	// Unlock 释放锁。锁已过期或被抢占时返回 ErrNotLocked。
	Unlock(ctx context.Context) error
	Key() string
}

// Locker 提供跨副本互斥。
type Locker interface {
	// TryLock 尝试获取锁，不等待。锁被占用时返回 (nil, nil)。
	TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// RedisLocker 基于 redsync 的集群锁。多个客户端时按 Redlock 多数派获取。
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
}

// RedisLockerOption 配置 RedisLocker。
type RedisLockerOption func(*RedisLocker)

// WithKeyPrefix 设置锁 key 前缀，默认 "xgeo:warm:lock:"。
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

// NewRedisLocker 使用一个或多个独立的 Redis 节点创建锁。
func NewRedisLocker(clients []redis.UniversalClient, opts ...RedisLockerOption) (*RedisLocker, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilClient, i)
		}
		pools[i] = goredis.NewPool(c)
	}
	l := &RedisLocker{rs: redsync.New(pools...), prefix: "xgeo:warm:lock:"}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryLock 实现 Locker。
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if key == "" {
		return nil, ErrEmptyJobName
	}
	fullKey := l.prefix + key
	mutex := l.rs.NewMutex(fullKey, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		if isTaken(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("xwarm: lock %s: %w", fullKey, err)
	}
	return &redisLockHandle{mutex: mutex, key: fullKey}, nil
}

// isTaken 判断获取失败是否因为锁被占用。
// 单次尝试时 redsync 对占用与节点不可达都报告 ErrFailed，两者都按"本轮不执行"处理。
func isTaken(err error) bool {
	var taken *redsync.ErrTaken
	return errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed)
}

type redisLockHandle struct {
	mutex *redsync.Mutex
	key   string
}

func (h *redisLockHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	return lockResult(ctx, ok, err)
}

func (h *redisLockHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	return lockResult(ctx, ok, err)
}

// lockResult 把续期与释放的结果归一化：未达到多数派即视为锁已丢失。
func lockResult(ctx context.Context, ok bool, err error) error {
	if ok {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	}
	return ErrNotLocked
}

func (h *redisLockHandle) Key() string { return h.key }

var (
	_ Locker     = (*RedisLocker)(nil)
	_ LockHandle = (*redisLockHandle)(nil)
)
