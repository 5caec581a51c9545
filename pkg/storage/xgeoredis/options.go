package xgeoredis

import (
	"log/slog"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

const (
	// DefaultKeyPrefix 是默认键前缀。
	DefaultKeyPrefix = "{xgeo}"

	// DefaultOverfetch 是无过滤条件时 GEORADIUS COUNT 相对 limit 的倍数，
	// 用于跳过已过期但尚未清理的成员。
	DefaultOverfetch = 4

	// DefaultPruneBatch 是 Prune 每批扫描的成员数。
	DefaultPruneBatch = 256
)

type options struct {
	prefix     string
	schema     *xgeo.Schema
	overfetch  int
	pruneBatch int
	clock      func() time.Time
	logger     *slog.Logger
}

// Option 配置 Index。
type Option func(*options)

func defaultOptions() *options {
	return &options{
		prefix:     DefaultKeyPrefix,
		overfetch:  DefaultOverfetch,
		pruneBatch: DefaultPruneBatch,
		clock:      time.Now,
		logger:     slog.Default(),
	}
}

// WithKeyPrefix 设置键前缀。部署在 Redis Cluster 上时前缀应包含 hash tag。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithSchema 设置属性声明，等值属性维护倒排集合。
func WithSchema(s *xgeo.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// WithOverfetch 设置 GEORADIUS COUNT 的放大倍数，n <= 0 表示不使用 COUNT。
func WithOverfetch(n int) Option {
	return func(o *options) {
		o.overfetch = n
	}
}

// WithPruneBatch 设置 Prune 每批扫描的成员数。
func WithPruneBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pruneBatch = n
		}
	}
}

// WithClock 设置写入时间的来源，用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithLogger 设置日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
