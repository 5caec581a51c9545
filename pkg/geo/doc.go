// Package geo 提供缓存优先的地理检索。
//
// 子包列表：
//   - xgeo: 值类型、过滤条件、属性索引声明与存储接口
//   - xgeocache: 缓存协调器（查询、回写、统计、失效）
//   - xstale: 陈旧判定策略
//   - xwarm: 区域预热与定时任务
package geo
