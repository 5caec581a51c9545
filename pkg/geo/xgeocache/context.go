package xgeocache

import (
	"context"
	"errors"
	"time"
)

// detachedCtx 保留原 context 的 Value，但不继承取消信号与截止时间。
// 用于共享回源与异步回写：单个调用方取消不应影响其他等待者或已接受的回写。
type detachedCtx struct {
	context.Context
}

func (detachedCtx) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedCtx) Done() <-chan struct{}       { return nil }
func (detachedCtx) Err() error                  { return nil }

func contextDetached(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return detachedCtx{Context: ctx}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
