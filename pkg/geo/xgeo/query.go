package xgeo

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

// QuerySpec 描述一次"在 Center 周围 Radius 内查找满足 Filters 的实体"的请求。
type QuerySpec struct {
	// Center 是检索中心。
	Center GeoKey
	// Radius 是检索半径，必须为正。
	Radius Distance
	// Unit 是结果距离的单位；为空时与 Radius 单位一致。
	Unit Unit
	// Filters 是有序的过滤条件，全部满足才命中。
	Filters []Filter
	// Limit 是结果上限。0 使用默认值，超过上限时截断，负数非法。
	Limit int
	// MinFresh 覆盖"接受缓存命中所需的最少新鲜结果数"；0 使用协调器配置。
	MinFresh int
	// BypassCache 跳过缓存探测与回写，直接查询 PrimaryStore。
	BypassCache bool
}

// Validate 做结构校验。属性是否已声明由 Schema.Validate 负责。
func (s QuerySpec) Validate() error {
	if !s.Center.Valid() {
		return fmt.Errorf("%w: center", ErrInvalidGeoKey)
	}
	if err := s.Radius.Validate(); err != nil {
		return err
	}
	if s.Unit != "" && !s.Unit.Valid() {
		return fmt.Errorf("%w: unknown result unit %q", ErrInvalidRadius, s.Unit)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, s.Limit)
	}
	if s.MinFresh < 0 {
		return fmt.Errorf("%w: min fresh %d", ErrInvalidLimit, s.MinFresh)
	}
	for _, f := range s.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResultUnit 返回结果距离单位。
func (s QuerySpec) ResultUnit() Unit {
	if s.Unit != "" {
		return s.Unit
	}
	return s.Radius.Unit
}

// RadiusQuery 是协调器下发给 FastIndex / PrimaryStore 的规范化请求。
type RadiusQuery struct {
	Center       GeoKey
	RadiusMeters float64
	Filters      []Filter
	Limit        int
}

// Contains 报告 k 是否在检索半径内（按球面距离）。
func (q RadiusQuery) Contains(k GeoKey) bool {
	return q.Center.DistanceTo(k) <= q.RadiusMeters
}

// Source 标识结果来源。
type Source uint8

const (
	SourceFastIndex Source = iota + 1
	SourcePrimaryStore
)

func (s Source) String() string {
	switch s {
	case SourceFastIndex:
		return "fast_index"
	case SourcePrimaryStore:
		return "primary_store"
	default:
		return "unknown"
	}
}

// Hit 是结果中的一条记录。
type Hit struct {
	Entity Entity
	// Distance 是到中心的距离，单位为 QueryResult.Unit。
	Distance float64
	// Meters 是到中心的距离（米），用于排序。
	Meters float64
	Source Source
	// Age 是相对 LastRefreshed 的数据年龄。
	Age time.Duration
	// Stale 为 true 表示该条目超过了过期策略允许的年龄，仅出现在降级结果中。
	Stale bool
}

// AgeSeconds 返回数据年龄（秒）。
func (h Hit) AgeSeconds() float64 { return h.Age.Seconds() }

// QueryResult 是按距离升序、距离相同时按 ID 升序排列的结果。
type QueryResult struct {
	Hits     []Hit
	Source   Source
	Unit     Unit
	Degraded bool
}

// Len 返回结果条数。
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Hits)
}

// IDs 按结果顺序返回实体 ID。
func (r *QueryResult) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.Entity.ID
	}
	return ids
}

// SortHits 按距离升序排序，距离相同按实体 ID 升序。
func SortHits(hits []Hit) {
	slices.SortFunc(hits, compareHits)
}

func compareHits(a, b Hit) int {
	if c := cmp.Compare(a.Meters, b.Meters); c != 0 {
		return c
	}
	return cmp.Compare(a.Entity.ID, b.Entity.ID)
}

// NewHit 计算实体到中心的距离并构造 Hit。
func NewHit(center GeoKey, e Entity, unit Unit, src Source, now time.Time) Hit {
	m := center.DistanceTo(e.Key)
	if math.IsNaN(m) {
		m = 0
	}
	return Hit{
		Entity:   e,
		Distance: unit.FromMeters(m),
		Meters:   m,
		Source:   src,
		Age:      max(e.Age(now), 0),
	}
}
