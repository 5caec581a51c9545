// Package xguard 为 PrimaryStore 提供重试与熔断保护。
//
// # 调用链
//
// NewPrimary 返回的 Primary 本身实现 xgeo.PrimaryStore，可直接交给 xgeocache：
//
//	RadiusQuery → retry-go 重试循环 → gobreaker 熔断器 → 被包装的 PrimaryStore
//
// 每次尝试单独经过熔断器，连续失败达到阈值后熔断器打开，
// 此后的调用不再访问下游，直接返回匹配 xgeo.ErrPrimaryUnavailable 的 *BreakerError，
// 并且不再重试。打开超时后进入半开状态，放行有限探测请求。
//
// # 错误分类
//
//   - xgeo.ErrInvalidQuery：不重试，也不计入熔断统计
//   - context.Canceled：调用方放弃，不重试，不计入熔断统计
//   - context.DeadlineExceeded：不重试，计为一次失败（下游过慢）
//   - 其他错误：按退避策略重试，计为失败
//
// # 慢查询
//
// 慢查询以整个调用（含全部重试）的耗时计算，SlowQueryInfo.Attempts 记录尝试次数。
package xguard
