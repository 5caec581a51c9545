package xgeomem

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

type candidate struct {
	entity xgeo.Entity
	meters float64
}

// searchBound 返回半径查询的外接矩形；接近极点或跨越日期变更线时返回 false，
// 调用方应跳过矩形预过滤。
func searchBound(q xgeo.RadiusQuery) (orb.Bound, bool) {
	b := geo.NewBoundAroundPoint(q.Center.Point(), q.RadiusMeters)
	if b.Min[0] <= -180 || b.Max[0] >= 180 || b.Min[1] <= -90 || b.Max[1] >= 90 {
		return b, false
	}
	return b, true
}

// collector 收集半径内满足过滤条件的实体。
type collector struct {
	q        xgeo.RadiusQuery
	bound    orb.Bound
	useBound bool
	out      []candidate
}

func newCollector(q xgeo.RadiusQuery) *collector {
	b, ok := searchBound(q)
	return &collector{q: q, bound: b, useBound: ok}
}

func (c *collector) offer(e xgeo.Entity) {
	if !e.Key.Valid() {
		return
	}
	if c.useBound && !c.bound.Contains(e.Key.Point()) {
		return
	}
	m := c.q.Center.DistanceTo(e.Key)
	if m > c.q.RadiusMeters || !xgeo.MatchAll(c.q.Filters, e) {
		return
	}
	c.out = append(c.out, candidate{entity: e, meters: m})
}

// result 按距离升序（距离相同按 ID）排序，截断到 limit，并返回深拷贝。
func (c *collector) result() []xgeo.Entity {
	slices.SortFunc(c.out, func(a, b candidate) int {
		if r := cmp.Compare(a.meters, b.meters); r != 0 {
			return r
		}
		return cmp.Compare(a.entity.ID, b.entity.ID)
	})
	if c.q.Limit > 0 && len(c.out) > c.q.Limit {
		c.out = c.out[:c.q.Limit]
	}
	entities := make([]xgeo.Entity, len(c.out))
	for i, cand := range c.out {
		entities[i] = cand.entity.Clone()
	}
	return entities
}
