// Package xrun 管理常驻进程中一组后台服务的运行与协调关闭。
//
// # 服务组
//
// [Group] 基于 errgroup：任一服务返回错误，或父 context 被取消，
// 其余服务都会收到取消信号。服务因取消而返回的 context.Canceled
// 不视为错误，[Group.Wait] 只返回真正的失败原因。
//
//	g, ctx := xrun.NewGroup(ctx, xrun.WithLogger(logger))
//	g.Go("scheduler", func(ctx context.Context) error { ... })
//	g.Go("stats", xrun.Ticker(time.Minute, publish, logErr))
//	g.Go("shutdown", xrun.OnShutdown(30*time.Second, closeAll))
//	return g.Wait()
//
// # 服务函数
//
//   - [Ticker]: 周期执行，可选择让单次失败只交给回调而不终止服务组
//   - [OnShutdown]: 等待取消后在独立超时内执行清理
//   - [Drain]: 消费通道直到关闭或取消
//
// 信号处理由调用方负责（例如 signal.NotifyContext）。
package xrun
