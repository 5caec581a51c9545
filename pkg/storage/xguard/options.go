package xguard

import (
	"context"
	"log/slog"
	"time"

	"github.com/omeyang/xgeo/internal/storageopt"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

const (
	defaultName             = "primary"
	defaultAttempts         = 3
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

// SlowQueryInfo 慢查询详细信息。
type SlowQueryInfo struct {
	Breaker      string
	RadiusMeters float64
	Filters      int
	Limit        int
	// Attempts 是本次调用实际发起的尝试次数。
	Attempts int
	Duration time.Duration
}

// Options 定义保护层的配置。
type Options struct {
	storageopt.BaseOptions[SlowQueryInfo]

	// Name 是熔断器名称，出现在日志与 BreakerError 中。
	Name string

	// Attempts 是单次调用的最大尝试次数（含首次）。
	Attempts int

	// Backoff 决定重试间隔。
	Backoff Backoff

	// AttemptTimeout 限制每次尝试的耗时，0 表示只受调用方 context 约束。
	AttemptTimeout time.Duration

	// FailureThreshold 是触发熔断的连续失败次数。
	FailureThreshold uint32

	// OpenTimeout 是熔断器从打开转为半开的等待时间。
	OpenTimeout time.Duration

	// HalfOpenRequests 是半开状态下放行的探测请求数，连续成功这么多次后关闭。
	HalfOpenRequests uint32

	// Interval 是关闭状态下清零统计的周期，0 表示不清零。
	Interval time.Duration

	OnStateChange func(name string, from, to State)
	OnRetry       func(attempt int, err error)

	Logger *slog.Logger
}

// Option 定义配置 Options 的函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	base := storageopt.DefaultBaseOptions[SlowQueryInfo]()
	// 被包装的存储自带查询兜底超时
	base.QueryTimeout = 0
	return &Options{
		BaseOptions:      base,
		Name:             defaultName,
		Attempts:         defaultAttempts,
		Backoff:          NewExponentialBackoff(),
		FailureThreshold: defaultFailureThreshold,
		OpenTimeout:      defaultOpenTimeout,
		HalfOpenRequests: 1,
		Logger:           slog.Default(),
	}
}

func base(fn storageopt.OptionFunc[SlowQueryInfo]) Option {
	return func(o *Options) { fn(&o.BaseOptions) }
}

// WithName 设置熔断器名称。
func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithAttempts 设置最大尝试次数（含首次），n < 1 时忽略。1 表示不重试。
func WithAttempts(n int) Option {
	return func(o *Options) {
		if n >= 1 {
			o.Attempts = n
		}
	}
}

// WithBackoff 设置退避策略。
func WithBackoff(b Backoff) Option {
	return func(o *Options) {
		if b != nil {
			o.Backoff = b
		}
	}
}

// WithAttemptTimeout 设置每次尝试的超时。
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.AttemptTimeout = d
		}
	}
}

// WithFailureThreshold 设置触发熔断的连续失败次数，0 时忽略。
func WithFailureThreshold(n uint32) Option {
	return func(o *Options) {
		if n > 0 {
			o.FailureThreshold = n
		}
	}
}

// WithOpenTimeout 设置熔断打开时长。
func WithOpenTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.OpenTimeout = d
		}
	}
}

// WithHalfOpenRequests 设置半开状态的探测请求数。
func WithHalfOpenRequests(n uint32) Option {
	return func(o *Options) {
		if n > 0 {
			o.HalfOpenRequests = n
		}
	}
}

// WithInterval 设置关闭状态下统计清零周期。
func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.Interval = d
		}
	}
}

// WithOnStateChange 设置熔断器状态变化回调。
func WithOnStateChange(f func(name string, from, to State)) Option {
	return func(o *Options) { o.OnStateChange = f }
}

// WithOnRetry 设置重试回调，attempt 为即将发起的尝试序号（从 2 开始）。
func WithOnRetry(f func(attempt int, err error)) Option {
	return func(o *Options) { o.OnRetry = f }
}

// WithLogger 设置日志记录器，nil 时使用 slog.Default()。
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithHealthTimeout 设置健康检查超时时间。
func WithHealthTimeout(d time.Duration) Option {
	return base(storageopt.WithHealthTimeout[SlowQueryInfo](d))
}

// WithSlowQueryThreshold 设置慢查询阈值，0 表示禁用。
func WithSlowQueryThreshold(d time.Duration) Option {
	return base(storageopt.WithSlowQueryThreshold[SlowQueryInfo](d))
}

// WithSlowQueryHook 设置慢查询同步钩子。
func WithSlowQueryHook(hook func(ctx context.Context, info SlowQueryInfo)) Option {
	return base(storageopt.WithSlowQueryHook[SlowQueryInfo](hook))
}

// WithAsyncSlowQueryHook 设置慢查询异步钩子。
func WithAsyncSlowQueryHook(hook func(info SlowQueryInfo)) Option {
	return base(storageopt.WithAsyncSlowQueryHook[SlowQueryInfo](hook))
}

// WithObserver 设置统一观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return base(storageopt.WithObserver[SlowQueryInfo](observer))
}
