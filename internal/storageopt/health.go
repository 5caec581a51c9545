package storageopt

import (
	"context"
	"time"
)

const (
	// DefaultHealthTimeout 默认健康检查超时时间。
	DefaultHealthTimeout = 5 * time.Second

	// DefaultQueryTimeout 默认查询兜底超时时间。
	DefaultQueryTimeout = 3 * time.Second
)

// HealthContext 创建带健康检查超时的 context。
// 如果 timeout <= 0，返回原始 context 和空的 cancel 函数。
func HealthContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// ApplyTimeout 当调用方未设置 deadline 且 timeout > 0 时，添加超时兜底。
// 调用方已有 deadline 时保持不变。
//
//	ctx, cancel := storageopt.ApplyTimeout(ctx, o.QueryTimeout)
//	defer cancel()
func ApplyTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
