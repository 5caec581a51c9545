// Package xgeomem 提供进程内的 FastIndex 与 PrimaryStore 实现。
//
// Index 是有容量上限（LRU 淘汰）的地理索引：
//   - 每个条目有独立的过期时间，过期条目对 RadiusQuery 不可见，由 Prune 清理
//   - RadiusQuery 只使用 Peek，不改变 LRU 顺序，也不刷新过期时间
//   - Schema 中的等值属性维护倒排表，带等值过滤的查询只扫描最小的倒排集合
//
// Store 是以 map 保存的权威存储，用于本地演示、测试和单机部署。
package xgeomem
