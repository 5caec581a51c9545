package xgeo

import (
	"context"
	"time"
)

// FastIndex 是易失、低延迟的地理索引（缓存）。实现必须并发安全。
type FastIndex interface {
	// RadiusQuery 返回半径内满足全部过滤条件的实体，按距离升序，至多 Limit 条。
	// 必须是纯读：不得刷新 TTL 或修改任何条目。
	// 索引不可达时返回包装 ErrIndexUnavailable 的错误；无匹配时返回空切片与 nil。
	RadiusQuery(ctx context.Context, q RadiusQuery) ([]Entity, error)

	// Populate 以 LastRefreshed = now、过期时间 now+ttl 写入（覆盖）实体。
	// 同一数据写入多次与写入一次的可观察状态一致（时间戳除外）。
	Populate(ctx context.Context, entities []Entity, ttl time.Duration) error

	// Invalidate 立即删除实体，无论 TTL 是否到期。不存在时不报错。
	Invalidate(ctx context.Context, id string) error
}

// PrimaryStore 是权威的持久化地理存储。实现必须并发安全。
type PrimaryStore interface {
	// RadiusQuery 语义与 FastIndex.RadiusQuery 相同，但强一致。
	// 连接失败返回包装 ErrPrimaryUnavailable 的错误，非法过滤条件返回包装 ErrInvalidQuery 的错误。
	RadiusQuery(ctx context.Context, q RadiusQuery) ([]Entity, error)
}

// Pruner 由能够清理过期残留的索引实现。
type Pruner interface {
	// Prune 清理已过期但仍残留在索引结构中的条目，返回清理数量。
	Prune(ctx context.Context) (int, error)
}

// SchemaProvider 由在构建时绑定了 Schema 的索引或存储实现。
type SchemaProvider interface {
	Schema() *Schema
}
