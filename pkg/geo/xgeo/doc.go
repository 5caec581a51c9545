// Package xgeo 定义地理检索缓存层的值类型与外部协作方契约。
//
// # 核心类型
//
//   - GeoKey：经纬度坐标，构造时校验范围，派生 geohash 与 52 位网格排序键
//   - Entity：带稳定 ID、坐标、可过滤属性与刷新时间的记录
//   - QuerySpec / QueryResult：半径检索请求与按距离排序的结果
//   - Filter：显式声明的过滤条件，运算符仅有 OpEquals 与 OpRange 两种
//   - Schema：由 IndexManager 在启动阶段一次性构建的属性索引能力集
//
// # 协作方契约
//
//   - FastIndex：易失、低延迟的地理索引（缓存），RadiusQuery 必须是纯读
//   - PrimaryStore：权威的持久化地理存储
//
// # 错误分类
//
// 所有实现都应使用本包的哨兵错误包装底层原因，调用方通过 errors.Is 判断：
//   - ErrInvalidQuery：请求非法，不重试
//   - ErrIndexUnavailable：索引不可达，协调器将其视为缓存未命中
//   - ErrPrimaryUnavailable：权威存储不可达
//   - ErrPopulateFailed：回写失败，只进入统计和异步错误通道
package xgeo
