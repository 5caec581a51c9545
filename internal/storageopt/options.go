package storageopt

import (
	"time"

	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

// =============================================================================
// 通用配置选项
// =============================================================================

// BaseOptions 定义 PrimaryStore 绑定的通用配置选项。
// T 是慢查询信息的具体类型（如 xgeomongo.SlowQueryInfo）。
type BaseOptions[T any] struct {
	// HealthTimeout 健康检查超时时间，默认 5 秒。
	HealthTimeout time.Duration

	// QueryTimeout 调用方未设置 deadline 时的半径查询兜底超时，默认 3 秒。
	// 为 0 时不设兜底。
	QueryTimeout time.Duration

	// SlowQueryThreshold 慢查询阈值，为 0 时禁用慢查询检测。
	SlowQueryThreshold time.Duration

	// SlowQueryHook 慢查询同步回调钩子。
	SlowQueryHook SlowQueryHook[T]

	// AsyncSlowQueryHook 慢查询异步回调钩子。
	AsyncSlowQueryHook AsyncSlowQueryHook[T]

	// Observer 是统一观测接口（metrics/tracing）。
	Observer xmetrics.Observer
}

// OptionFunc 定义配置 BaseOptions 的函数类型。
type OptionFunc[T any] func(*BaseOptions[T])

// DefaultBaseOptions 返回默认配置。
func DefaultBaseOptions[T any]() BaseOptions[T] {
	return BaseOptions[T]{
		HealthTimeout: DefaultHealthTimeout,
		QueryTimeout:  DefaultQueryTimeout,
		Observer:      xmetrics.NoopObserver{},
	}
}

// NewDetector 根据选项创建慢查询检测器。
func (o *BaseOptions[T]) NewDetector() (*SlowQueryDetector[T], error) {
	return NewSlowQueryDetector(SlowQueryOptions[T]{
		Threshold: o.SlowQueryThreshold,
		SyncHook:  o.SlowQueryHook,
		AsyncHook: o.AsyncSlowQueryHook,
	})
}

// =============================================================================
// 通用 With* 配置函数
// =============================================================================

// WithHealthTimeout 设置健康检查超时时间。
func WithHealthTimeout[T any](timeout time.Duration) OptionFunc[T] {
	return func(o *BaseOptions[T]) {
		if timeout > 0 {
			o.HealthTimeout = timeout
		}
	}
}

// WithQueryTimeout 设置查询兜底超时时间，0 表示不设兜底。
func WithQueryTimeout[T any](timeout time.Duration) OptionFunc[T] {
	return func(o *BaseOptions[T]) {
		if timeout >= 0 {
			o.QueryTimeout = timeout
		}
	}
}

// WithSlowQueryThreshold 设置慢查询阈值，0 表示禁用。
func WithSlowQueryThreshold[T any](threshold time.Duration) OptionFunc[T] {
	return func(o *BaseOptions[T]) {
		o.SlowQueryThreshold = threshold
	}
}

// WithSlowQueryHook 设置慢查询同步回调钩子。
func WithSlowQueryHook[T any](hook SlowQueryHook[T]) OptionFunc[T] {
	return func(o *BaseOptions[T]) {
		o.SlowQueryHook = hook
	}
}

// WithAsyncSlowQueryHook 设置慢查询异步回调钩子。
func WithAsyncSlowQueryHook[T any](hook AsyncSlowQueryHook[T]) OptionFunc[T] {
	return func(o *BaseOptions[T]) {
		o.AsyncSlowQueryHook = hook
	}
}

// WithObserver 设置统一观测接口，nil 被忽略。
func WithObserver[T any](observer xmetrics.Observer) OptionFunc[T] {
	return func(o *BaseOptions[T]) {
		if observer != nil {
			o.Observer = observer
		}
	}
}
