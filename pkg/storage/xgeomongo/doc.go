// Package xgeomongo 提供基于 MongoDB 的 PrimaryStore 绑定。
//
// 文档结构：
//
//	{
//	  _id:        <entity id>,
//	  location:   {type: "Point", coordinates: [lon, lat]},
//	  kind:       <entity kind>,
//	  attrs:      {<name>: string | number | bool, ...},
//	  props:      {<name>: string, ...},
//	  updated_at: <DateTime>
//	}
//
// RadiusQuery 使用 $geoNear 聚合（spherical，maxDistance 以米计），过滤条件下推为
// $geoNear.query，随后按 {dist, _id} 排序并 $limit。updated_at 映射为 Entity.LastRefreshed。
//
// 启动时调用一次 EnsureIndexes 创建 location 的 2dsphere 索引与声明属性的升序索引。
//
// 错误分类：BadValue / FailedToParse / TypeMismatch 类命令错误包装 xgeo.ErrInvalidQuery，
// 其余后端错误（网络、选主、超时）包装 xgeo.ErrPrimaryUnavailable；context 错误原样返回。
package xgeomongo
