// Package xgeoredis 提供基于 Redis GEO 的 FastIndex 实现。
//
// # 键布局
//
// 所有键共享前缀 P（默认 "{xgeo}"，花括号使 Redis Cluster 将它们分配到同一个 slot，
// MGET、SINTER 与事务管道因此可以跨键执行）：
//
//   - P:geo              GEO 有序集合，成员为实体 ID
//   - P:ent:<id>         实体 JSON，带 PX 过期时间
//   - P:attr:<name>:<v>  等值属性倒排集合
//   - P:mem:<id>         实体所在的倒排集合列表，用于删除与清理
//
// # 语义
//
// RadiusQuery 使用 GEORADIUS_RO，是纯读操作，不刷新过期时间。
// 实体 JSON 过期后，GEO 成员与倒排成员仍然存在，RadiusQuery 会跳过它们，
// 由 Prune 定期清理。
//
// Redis GEO 只接受 ±85.05112878 以内的纬度，超出范围的实体不写入索引。
//
// 连接类错误包装为 xgeo.ErrIndexUnavailable。
package xgeoredis
