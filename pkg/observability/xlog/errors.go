package xlog

import "errors"

var (
	// ErrUnknownLevel 表示无法解析的日志级别。
	ErrUnknownLevel = errors.New("xlog: unknown level")

	// ErrUnknownFormat 表示未知输出格式。
	ErrUnknownFormat = errors.New("xlog: unknown format")

	// ErrInvalidRotation 表示轮转配置非法。
	ErrInvalidRotation = errors.New("xlog: invalid rotation config")

	// ErrNilOutput 表示输出目标为 nil。
	ErrNilOutput = errors.New("xlog: nil output")
)
