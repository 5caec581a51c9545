// Package xgeocache 实现缓存优先的地理检索协调器。
//
// # 查询流程
//
// Coordinator.Query 按显式状态推进，每一步都可单独测试：
//
//	validate → probe → stale-check → fallback → write-back
//
//   - validate：结构校验与 Schema 校验，失败返回 xgeo.ErrInvalidQuery，不访问任何存储
//   - probe：FastIndex.RadiusQuery（纯读）；索引不可达时记录日志并按未命中处理
//   - stale-check：按 xstale.Policy 把命中划分为 fresh / stale
//   - fallback：fresh 数量不足时查询 PrimaryStore；相同请求并发未命中时只回源一次
//   - write-back：回源成功后异步写回 FastIndex，调用方无需等待
//
// PrimaryStore 失败且存在缓存命中时返回降级结果（QueryResult.Degraded），
// 否则返回包装 xgeo.ErrPrimaryUnavailable 的错误。
//
// # 回写
//
// 回写在有界 worker pool 中执行。失败不会返回给查询调用方，而是：
//   - 计入 Stats.PopulateFailures
//   - 以非阻塞方式投递到 WriteBackErrors() 通道，通道满时计入 Stats.DroppedErrors
//
// 调用方取消的查询不会触发回写。
//
// # 并发
//
// Coordinator 没有任何串行化查询的全局锁；统计信息全部使用原子计数。
// FastIndex 与 PrimaryStore 被视为自行保证并发安全的外部协作方。
//
// # 快速开始
//
//	coord, err := xgeocache.New(index, primary,
//		xgeocache.WithDefaultTTL(time.Hour),
//		xgeocache.WithStalenessPolicy(xstale.NewMaxAge(time.Hour)),
//	)
//	defer coord.Close()
//
//	res, err := coord.Query(ctx, xgeo.QuerySpec{
//		Center:  xgeo.MustGeoKey(41.8902, 12.4922),
//		Radius:  xgeo.Km(2),
//		Filters: []xgeo.Filter{xgeo.Eq("cuisine", xgeo.StringValue("italian"))},
//	})
package xgeocache
