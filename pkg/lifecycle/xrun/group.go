package xrun

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Option 配置 Group。
type Option func(*groupOptions)

type groupOptions struct {
	logger *slog.Logger
	name   string
}

// WithLogger 设置记录服务生命周期的日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *groupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 Group 名称，出现在日志的 group 字段，默认 "xrun"。
func WithName(name string) Option {
	return func(o *groupOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Group 并发运行一组具名服务。Go 与 Cancel 可并发调用，Wait 只应调用一次。
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelCauseFunc
	opts   groupOptions
}

// NewGroup 创建 Group，返回的 context 在任一服务失败或 Cancel 时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := groupOptions{logger: slog.Default(), name: "xrun"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, cancel: cancel, opts: o}, egCtx
}

// Go 以 name 启动服务。fn 应在 ctx 取消后尽快返回。
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		logger := g.opts.logger.With(slog.String("group", g.opts.name), slog.String("service", name))
		logger.Debug("service starting")
		err := fn(g.ctx)
		if err != nil && !isCancel(err) {
			logger.Warn("service exited with error", slog.Any("error", err))
			return err
		}
		logger.Debug("service stopped")
		// 组取消后的取消错误不占用 errgroup 的首个错误
		if err != nil && g.ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// Cancel 取消所有服务。cause 非 nil 且不是取消错误时，Wait 返回 cause。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待全部服务返回。取消导致的退出返回 nil，除非 Cancel 给出了原因。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()
	if err != nil && !isCancel(err) {
		return err
	}
	if cause := context.Cause(g.ctx); cause != nil && !isCancel(cause) {
		return cause
	}
	return nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
