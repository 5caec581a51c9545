// Package xwarm 提供缓存预热与索引清理的调度。
//
// # 预热
//
// Warmer 直接查询 PrimaryStore，把区域内的实体经 Populate（通常是
// xgeocache.Coordinator）同步写入 FastIndex，使首批请求即可命中缓存：
//
//	w, err := xwarm.NewWarmer(primary, coord, xwarm.WithRegions(
//		xwarm.Region{Name: "rome", Center: xgeo.MustGeoKey(41.8902, 12.4922), Radius: xgeo.Km(5)},
//	))
//	reports, err := w.WarmAll(ctx)
//
// WarmAll 对每个区域独立执行，单个区域失败不影响其他区域，错误以 errors.Join 汇总。
//
// # 调度
//
// Scheduler 基于 robfig/cron 注册预热与清理任务。配置 Locker 后每次执行前
// 先获取集群锁（redsync），只有持锁副本执行，其余副本跳过本轮；
// 持锁期间按 TTL/3 周期续期，续期失败立即取消任务。
//
//	s := xwarm.NewScheduler(xwarm.WithLocker(locker))
//	s.AddWarm("0 */30 * * * *", w)
//	s.AddPrune("@every 5m", index)
//	s.Start()
//	defer s.Stop(ctx)
package xwarm
