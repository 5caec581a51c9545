package xgeocache

import "errors"

var (
	// ErrNilIndex 表示 FastIndex 为 nil。
	ErrNilIndex = errors.New("xgeocache: nil fast index")

	// ErrNilPrimary 表示 PrimaryStore 为 nil。
	ErrNilPrimary = errors.New("xgeocache: nil primary store")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xgeocache: nil context")

	// ErrInvalidConfig 表示配置参数无效。
	ErrInvalidConfig = errors.New("xgeocache: invalid configuration")

	// ErrClosed 表示协调器已关闭。
	ErrClosed = errors.New("xgeocache: coordinator closed")

	// ErrWriteBackRejected 表示回写队列已满或已停止，任务未被接受。
	ErrWriteBackRejected = errors.New("xgeocache: write-back rejected")

	// ErrPrimaryPanic 表示 PrimaryStore 实现发生了 panic。
	// 该错误会被包装为 xgeo.ErrPrimaryUnavailable。
	ErrPrimaryPanic = errors.New("xgeocache: primary store panicked")
)
