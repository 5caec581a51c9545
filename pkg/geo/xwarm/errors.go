package xwarm

import "errors"

var (
	// ErrNilPrimary 表示 PrimaryStore 为 nil。
	ErrNilPrimary = errors.New("xwarm: nil primary store")

	// ErrNilTarget 表示预热写入目标为 nil。
	ErrNilTarget = errors.New("xwarm: nil populate target")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xwarm: nil context")

	// ErrInvalidRegion 表示区域定义非法。
	ErrInvalidRegion = errors.New("xwarm: invalid region")

	// ErrDuplicateRegion 表示区域名重复。
	ErrDuplicateRegion = errors.New("xwarm: duplicate region")

	// ErrUnknownRegion 表示按名称找不到区域。
	ErrUnknownRegion = errors.New("xwarm: unknown region")

	// ErrNilJob 表示任务为 nil。
	ErrNilJob = errors.New("xwarm: job cannot be nil")

	// ErrEmptyJobName 表示任务名为空。任务名同时是集群锁的 key。
	ErrEmptyJobName = errors.New("xwarm: job name must not be empty")

	// ErrDuplicateJob 表示任务名重复。
	ErrDuplicateJob = errors.New("xwarm: duplicate job")

	// ErrUnknownJob 表示按名称找不到任务。
	ErrUnknownJob = errors.New("xwarm: unknown job")

	// ErrLockNotAcquired 表示集群锁被其他副本持有，本轮被跳过。
	ErrLockNotAcquired = errors.New("xwarm: lock held by another instance")

	// ErrNilClient 表示 Redis 客户端为 nil。
	ErrNilClient = errors.New("xwarm: nil redis client")

	// ErrNotLocked 表示锁已过期或不再由本实例持有。
	ErrNotLocked = errors.New("xwarm: lock not held")
)
