// Package storage 提供地理检索的存储绑定。
//
// 子包列表：
//   - xgeoredis: 基于 Redis GEO 的 FastIndex
//   - xgeomem: 进程内 FastIndex 与 PrimaryStore，用于演示与测试
//   - xpostgis: 基于 PostGIS 的 PrimaryStore
//   - xgeomongo: 基于 MongoDB 2dsphere 的 PrimaryStore
//   - xguard: PrimaryStore 的重试与熔断装饰器
//
// 设计原则：
//   - 所有绑定实现 xgeo 中的 FastIndex / PrimaryStore 接口
//   - 连接错误统一映射为 xgeo 错误分类，便于协调器降级
//   - 内置慢查询检测与可观测性
package storage
