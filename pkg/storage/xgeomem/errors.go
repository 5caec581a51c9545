package xgeomem

import "errors"

var (
	// ErrInvalidTTL 表示 Populate 的 ttl 非正。
	ErrInvalidTTL = errors.New("xgeomem: ttl must be positive")

	// ErrInvalidCapacity 表示容量非正。
	ErrInvalidCapacity = errors.New("xgeomem: capacity must be positive")
)
