package xrun

import (
	"context"
	"time"
)

// Ticker 返回按 interval 周期执行 fn 的服务函数。
//
// onErr 为 nil 时 fn 的错误终止服务（进而取消整个 Group）；
// 非 nil 时错误交给 onErr，服务继续运行。
func Ticker(interval time.Duration, fn func(ctx context.Context) error, onErr func(error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					if onErr == nil {
						return err
					}
					onErr(err)
				}
			}
		}
	}
}

// OnShutdown 返回等待 ctx 取消后执行 fn 的服务函数。
// fn 收到的 context 不随 ctx 取消，只受 timeout 约束；timeout 非正时不限时。
func OnShutdown(timeout time.Duration, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if fn == nil {
			return ErrNilFunc
		}
		<-ctx.Done()
		shutdownCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(shutdownCtx, timeout)
			defer cancel()
		}
		return fn(shutdownCtx)
	}
}

// Drain 返回消费 ch 的服务函数：每个元素交给 fn，直到 ch 关闭或 ctx 取消。
// ch 关闭时返回 nil。
func Drain[T any](ch <-chan T, fn func(T)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if fn == nil {
			return ErrNilFunc
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				fn(v)
			}
		}
	}
}
