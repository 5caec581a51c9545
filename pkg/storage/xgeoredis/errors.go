package xgeoredis

import "errors"

var (
	// ErrNilClient 表示传入的客户端为 nil。
	ErrNilClient = errors.New("xgeoredis: nil client")

	// ErrInvalidTTL 表示 Populate 的 ttl 非正。
	ErrInvalidTTL = errors.New("xgeoredis: ttl must be positive")

	// ErrCorruptPayload 表示实体 JSON 无法解码。
	ErrCorruptPayload = errors.New("xgeoredis: corrupt entity payload")
)
