package xgeomem

import (
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// DefaultCapacity 是 Index 默认容量。
const DefaultCapacity = 100_000

type options struct {
	capacity int
	schema   *xgeo.Schema
	clock    func() time.Time
}

// Option 配置 Index 或 Store。
type Option func(*options)

func defaultOptions() *options {
	return &options{
		capacity: DefaultCapacity,
		clock:    time.Now,
	}
}

// WithCapacity 设置 Index 最大条目数，超出后淘汰最久未写入的条目。
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithSchema 设置属性声明：用于过滤条件校验以及等值属性倒排表。
func WithSchema(s *xgeo.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// WithClock 设置时钟，用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}
