package xgeocache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xstale"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

// 默认配置。DefaultTTL 与默认最大年龄均为一小时。
const (
	DefaultTTL                = time.Hour
	DefaultLimit              = 50
	DefaultMaxResultLimit     = 500
	DefaultMinFreshResults    = 1
	DefaultPrimaryTimeout     = 30 * time.Second
	DefaultWriteBackWorkers   = 4
	DefaultWriteBackQueueSize = 256
	DefaultWriteBackTimeout   = 5 * time.Second
	DefaultErrorBufferSize    = 64
)

// Config 是协调器可从配置文件加载的部分。零值字段使用默认值。
type Config struct {
	// DefaultTTL 是写入 FastIndex 的条目存活时间。
	DefaultTTL time.Duration `koanf:"default_ttl"`
	// MaxAge 是默认过期策略的最大数据年龄，仅在未指定 Staleness 时生效。
	MaxAge time.Duration `koanf:"max_age"`
	// DefaultLimit 是 QuerySpec.Limit 为 0 时使用的结果上限。
	DefaultLimit int `koanf:"default_limit"`
	// MaxResultLimit 是结果上限的上界，超过时截断。
	MaxResultLimit int `koanf:"max_result_limit"`
	// MinFreshResults 是接受缓存命中所需的最少新鲜结果数。
	MinFreshResults int `koanf:"min_fresh_results"`
	// PrimaryTimeout 是单次回源的超时时间。
	PrimaryTimeout time.Duration `koanf:"primary_timeout"`
	// WriteBackWorkers 是回写 worker 数量。
	WriteBackWorkers int `koanf:"write_back_workers"`
	// WriteBackQueueSize 是回写队列长度。
	WriteBackQueueSize int `koanf:"write_back_queue_size"`
	// WriteBackTimeout 是单次回写的超时时间。
	WriteBackTimeout time.Duration `koanf:"write_back_timeout"`
	// ErrorBufferSize 是回写错误通道的缓冲大小。
	ErrorBufferSize int `koanf:"error_buffer_size"`
	// DisableSingleflight 关闭并发未命中合并。
	DisableSingleflight bool `koanf:"disable_singleflight"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		DefaultTTL:         DefaultTTL,
		MaxAge:             xstale.DefaultMaxAge,
		DefaultLimit:       DefaultLimit,
		MaxResultLimit:     DefaultMaxResultLimit,
		MinFreshResults:    DefaultMinFreshResults,
		PrimaryTimeout:     DefaultPrimaryTimeout,
		WriteBackWorkers:   DefaultWriteBackWorkers,
		WriteBackQueueSize: DefaultWriteBackQueueSize,
		WriteBackTimeout:   DefaultWriteBackTimeout,
		ErrorBufferSize:    DefaultErrorBufferSize,
	}
}

// merge 用 other 的非零字段覆盖 c。
func (c *Config) merge(other Config) {
	setIfPositive(&c.DefaultTTL, other.DefaultTTL)
	setIfPositive(&c.MaxAge, other.MaxAge)
	setIfPositive(&c.DefaultLimit, other.DefaultLimit)
	setIfPositive(&c.MaxResultLimit, other.MaxResultLimit)
	setIfPositive(&c.MinFreshResults, other.MinFreshResults)
	setIfPositive(&c.PrimaryTimeout, other.PrimaryTimeout)
	setIfPositive(&c.WriteBackWorkers, other.WriteBackWorkers)
	setIfPositive(&c.WriteBackQueueSize, other.WriteBackQueueSize)
	setIfPositive(&c.WriteBackTimeout, other.WriteBackTimeout)
	setIfPositive(&c.ErrorBufferSize, other.ErrorBufferSize)
	if other.DisableSingleflight {
		c.DisableSingleflight = true
	}
}

func setIfPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// Validate 校验配置。
func (c Config) Validate() error {
	switch {
	case c.DefaultTTL <= 0:
		return fmt.Errorf("%w: default_ttl must be positive", ErrInvalidConfig)
	case c.MaxResultLimit <= 0:
		return fmt.Errorf("%w: max_result_limit must be positive", ErrInvalidConfig)
	case c.DefaultLimit <= 0:
		return fmt.Errorf("%w: default_limit must be positive", ErrInvalidConfig)
	case c.DefaultLimit > c.MaxResultLimit:
		return fmt.Errorf("%w: default_limit %d exceeds max_result_limit %d",
			ErrInvalidConfig, c.DefaultLimit, c.MaxResultLimit)
	case c.MinFreshResults <= 0:
		return fmt.Errorf("%w: min_fresh_results must be positive", ErrInvalidConfig)
	case c.WriteBackWorkers <= 0 || c.WriteBackQueueSize <= 0:
		return fmt.Errorf("%w: write-back workers and queue size must be positive", ErrInvalidConfig)
	case c.PrimaryTimeout <= 0 || c.WriteBackTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.ErrorBufferSize < 0:
		return fmt.Errorf("%w: error_buffer_size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Options 是协调器的完整配置。
type Options struct {
	Config

	// Staleness 是过期策略；为 nil 时使用 xstale.NewMaxAge(Config.MaxAge)。
	Staleness xstale.Policy
	// Schema 是过滤条件校验所用的属性声明；为 nil 时尝试从 FastIndex 获取。
	Schema *xgeo.Schema
	// Logger 默认为 slog.Default()。
	Logger *slog.Logger
	// Observer 默认为 xmetrics.NoopObserver。
	Observer xmetrics.Observer
	// Clock 用于过期判定与数据年龄计算，默认 time.Now。
	Clock func() time.Time
}

// Option 定义配置协调器的函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Config:   DefaultConfig(),
		Logger:   slog.Default(),
		Observer: xmetrics.NoopObserver{},
		Clock:    time.Now,
	}
}

// WithConfig 用 cfg 的非零字段覆盖当前配置。
func WithConfig(cfg Config) Option {
	return func(o *Options) {
		o.Config.merge(cfg)
	}
}

// WithDefaultTTL 设置回写条目的 TTL。
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.DefaultTTL = ttl
	}
}

// WithMaxResultLimit 设置结果上限的上界。
func WithMaxResultLimit(n int) Option {
	return func(o *Options) {
		o.MaxResultLimit = n
	}
}

// WithDefaultLimit 设置默认结果上限。
func WithDefaultLimit(n int) Option {
	return func(o *Options) {
		o.DefaultLimit = n
	}
}

// WithMinFreshResults 设置接受缓存命中所需的最少新鲜结果数。
func WithMinFreshResults(n int) Option {
	return func(o *Options) {
		o.MinFreshResults = n
	}
}

// WithStalenessPolicy 设置过期策略。
func WithStalenessPolicy(p xstale.Policy) Option {
	return func(o *Options) {
		if p != nil {
			o.Staleness = p
		}
	}
}

// WithSchema 设置过滤条件校验所用的 Schema。
func WithSchema(s *xgeo.Schema) Option {
	return func(o *Options) {
		o.Schema = s
	}
}

// WithPrimaryTimeout 设置单次回源超时。
func WithPrimaryTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.PrimaryTimeout = d
	}
}

// WithWriteBackWorkers 设置回写 worker 数量。
func WithWriteBackWorkers(n int) Option {
	return func(o *Options) {
		o.WriteBackWorkers = n
	}
}

// WithWriteBackQueueSize 设置回写队列长度。
func WithWriteBackQueueSize(n int) Option {
	return func(o *Options) {
		o.WriteBackQueueSize = n
	}
}

// WithWriteBackTimeout 设置单次回写超时。
func WithWriteBackTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.WriteBackTimeout = d
	}
}

// WithErrorBuffer 设置回写错误通道的缓冲大小，0 表示不缓冲（没有接收方时错误只计数）。
func WithErrorBuffer(n int) Option {
	return func(o *Options) {
		o.ErrorBufferSize = n
	}
}

// WithSingleflight 设置是否合并相同请求的并发回源。默认开启。
func WithSingleflight(enable bool) Option {
	return func(o *Options) {
		o.DisableSingleflight = !enable
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithObserver 设置观测器。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *Options) {
		if obs != nil {
			o.Observer = obs
		}
	}
}

// WithClock 设置时钟，用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}
