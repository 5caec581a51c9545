package xwarm

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

// =============================================================================
// Warmer 选项
// =============================================================================

const (
	defaultBatchSize   = 500
	defaultConcurrency = 2
)

type options struct {
	regions     []Region
	batchSize   int
	concurrency int
	logger      *slog.Logger
	observer    xmetrics.Observer
}

func defaultOptions() *options {
	return &options{
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		observer:    xmetrics.NoopObserver{},
	}
}

// Option 配置 Warmer。
type Option func(*options)

// WithRegions 追加预热区域。
func WithRegions(regions ...Region) Option {
	return func(o *options) { o.regions = append(o.regions, regions...) }
}

// WithBatchSize 设置单次 Populate 写入的实体数上限。
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithConcurrency 设置 WarmAll 同时预热的区域数。
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger 设置日志记录器，nil 时使用 slog.Default()。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver 设置统一观测接口。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// =============================================================================
// Scheduler 选项
// =============================================================================

const (
	defaultLockTTL    = 2 * time.Minute
	defaultJobTimeout = 10 * time.Minute
	unlockTimeout     = 5 * time.Second
)

type schedulerOptions struct {
	locker   Locker
	logger   *slog.Logger
	location *time.Location
	parser   cron.Parser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		logger:   slog.Default(),
		location: time.Local,
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// SchedulerOption 配置 Scheduler。
type SchedulerOption func(*schedulerOptions)

// WithLocker 设置集群锁，nil 表示单副本部署，不加锁。
func WithLocker(l Locker) SchedulerOption {
	return func(o *schedulerOptions) { o.locker = l }
}

// WithSchedulerLogger 设置调度器日志记录器。
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocation 设置 cron 表达式的时区，默认 time.Local。
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级 cron 表达式（6 段）。
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)
	}
}

type jobOptions struct {
	lockTTL   time.Duration
	timeout   time.Duration
	immediate bool
}

func defaultJobOptions() *jobOptions {
	return &jobOptions{
		lockTTL: defaultLockTTL,
		timeout: defaultJobTimeout,
	}
}

// JobOption 配置单个任务。
type JobOption func(*jobOptions)

// WithLockTTL 设置集群锁 TTL，持锁期间按 TTL/3 续期。
func WithLockTTL(ttl time.Duration) JobOption {
	return func(o *jobOptions) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithJobTimeout 设置单次执行超时，0 表示不限制。
func WithJobTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithImmediate 在 Start 时立即执行一次，之后按 cron 表达式执行。
func WithImmediate() JobOption {
	return func(o *jobOptions) { o.immediate = true }
}
