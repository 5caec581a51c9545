package xgeo

import (
	"fmt"
	"maps"
	"time"
)

// Entity 是可被检索的地理实体。
//
// PrimaryStore 持有权威副本；FastIndex 持有带 TTL 的派生副本。
type Entity struct {
	// ID 是稳定主键。
	ID string
	// Key 是实体坐标。
	Key GeoKey
	// Kind 是可选的实体类别，供按类别的过期策略使用。
	Kind string
	// Attrs 是可过滤属性。
	Attrs map[string]Value
	// Props 是不参与过滤的展示属性（名称、地址、电话等）。
	Props map[string]string
	// LastRefreshed 是该副本最近一次从权威数据刷新的时间。
	LastRefreshed time.Time
}

// Validate 校验实体可以写入索引。
func (e Entity) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if !e.Key.Valid() {
		return fmt.Errorf("%w: entity %s", ErrInvalidGeoKey, e.ID)
	}
	for name, v := range e.Attrs {
		if !v.Valid() {
			return fmt.Errorf("%w: entity %s attribute %s", ErrInvalidFilter, e.ID, name)
		}
	}
	return nil
}

// Clone 返回深拷贝，调用方修改副本的 map 不影响原实体。
func (e Entity) Clone() Entity {
	e.Attrs = maps.Clone(e.Attrs)
	e.Props = maps.Clone(e.Props)
	return e
}

// Age 返回相对 now 的数据年龄；LastRefreshed 为零值时返回 0。
func (e Entity) Age(now time.Time) time.Duration {
	if e.LastRefreshed.IsZero() {
		return 0
	}
	return now.Sub(e.LastRefreshed)
}

// SameData 报告两个实体除 LastRefreshed 外的可观察内容是否一致。
func (e Entity) SameData(other Entity) bool {
	if e.ID != other.ID || e.Kind != other.Kind || e.Key != other.Key {
		return false
	}
	if !maps.EqualFunc(e.Attrs, other.Attrs, Value.Equal) {
		return false
	}
	return maps.Equal(e.Props, other.Props)
}
