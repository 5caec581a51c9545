package xpostgis

import (
	"context"
	"time"

	"github.com/omeyang/xgeo/internal/storageopt"
	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

// DefaultTable 是默认表名。
const DefaultTable = "places"

// maxUpsertRows 单条 INSERT 的行数上限，保证参数个数低于协议上限 65535。
const maxUpsertRows = 500

// SlowQueryInfo 慢查询详细信息。
type SlowQueryInfo struct {
	Table string
	// Operation 操作类型（radius_query、upsert、delete）。
	Operation string
	// Statement 是执行的 SQL（参数以 $n 占位，不含实际取值）。
	Statement string
	Duration  time.Duration
}

// Options 定义 PostGIS 存储的配置选项。
type Options struct {
	storageopt.BaseOptions[SlowQueryInfo]

	// Table 表名，默认 DefaultTable。
	Table string

	// Schema 声明可过滤属性。
	Schema *xgeo.Schema

	// Clock 用于 Upsert 写入 updated_at，默认 time.Now。
	Clock func() time.Time
}

// Option 定义配置 Options 的函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		BaseOptions: storageopt.DefaultBaseOptions[SlowQueryInfo](),
		Table:       DefaultTable,
		Clock:       time.Now,
	}
}

func base(fn storageopt.OptionFunc[SlowQueryInfo]) Option {
	return func(o *Options) { fn(&o.BaseOptions) }
}

// WithTable 设置表名。
func WithTable(name string) Option {
	return func(o *Options) { o.Table = name }
}

// WithSchema 设置属性声明。
func WithSchema(s *xgeo.Schema) Option {
	return func(o *Options) { o.Schema = s }
}

// WithClock 设置时间源。
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// WithQueryTimeout 设置调用方未设置 deadline 时的查询兜底超时，0 表示不设兜底。
func WithQueryTimeout(d time.Duration) Option {
	return base(storageopt.WithQueryTimeout[SlowQueryInfo](d))
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
