package xgeomongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// 字段名。
const (
	fieldID        = "_id"
	fieldLocation  = "location"
	fieldKind      = "kind"
	fieldAttrs     = "attrs"
	fieldProps     = "props"
	fieldUpdatedAt = "updated_at"
	fieldDist      = "dist"
)

// geoPoint 是 GeoJSON Point，坐标顺序为 [lon, lat]。
type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

// document 是实体在集合中的存储形式。
type document struct {
	ID        string            `bson:"_id"`
	Location  geoPoint          `bson:"location"`
	Kind      string            `bson:"kind,omitempty"`
	Attrs     map[string]any    `bson:"attrs,omitempty"`
	Props     map[string]string `bson:"props,omitempty"`
	UpdatedAt time.Time         `bson:"updated_at"`
	// Dist 仅在 $geoNear 输出中出现。
	Dist float64 `bson:"dist,omitempty"`
}

func pointOf(k xgeo.GeoKey) geoPoint {
	return geoPoint{Type: "Point", Coordinates: []float64{k.Lon(), k.Lat()}}
}

func toDocument(e xgeo.Entity, updatedAt time.Time) document {
	d := document{
		ID:        e.ID,
		Location:  pointOf(e.Key),
		Kind:      e.Kind,
		Props:     e.Props,
		UpdatedAt: updatedAt.UTC(),
	}
	if len(e.Attrs) > 0 {
		d.Attrs = make(map[string]any, len(e.Attrs))
		for name, v := range e.Attrs {
			d.Attrs[name] = v.Any()
		}
	}
	return d
}

func (d document) entity() (xgeo.Entity, error) {
	if len(d.Location.Coordinates) != 2 {
		return xgeo.Entity{}, fmt.Errorf("%w: %s: location has %d coordinates", ErrCorruptDocument, d.ID, len(d.Location.Coordinates))
	}
	key, err := xgeo.NewGeoKey(d.Location.Coordinates[1], d.Location.Coordinates[0])
	if err != nil {
		return xgeo.Entity{}, fmt.Errorf("%w: %s: %w", ErrCorruptDocument, d.ID, err)
	}
	e := xgeo.Entity{
		ID:            d.ID,
		Key:           key,
		Kind:          d.Kind,
		Props:         d.Props,
		LastRefreshed: d.UpdatedAt,
	}
	if len(d.Attrs) > 0 {
		e.Attrs = make(map[string]xgeo.Value, len(d.Attrs))
		for name, raw := range d.Attrs {
			v, err := xgeo.ValueOf(raw)
			if err != nil {
				return xgeo.Entity{}, fmt.Errorf("%w: %s: attribute %s: %w", ErrCorruptDocument, d.ID, name, err)
			}
			e.Attrs[name] = v
		}
	}
	return e, nil
}

// =============================================================================
// 查询构建
// =============================================================================

func attrPath(name string) string { return fieldAttrs + "." + name }

// buildMatch 将过滤条件翻译为 $geoNear.query 文档。
// 同一属性上的多个条件用 $and 组合，保持与 xgeo.MatchAll 一致的合取语义。
func buildMatch(filters []xgeo.Filter) bson.D {
	if len(filters) == 0 {
		return bson.D{}
	}
	clauses := make(bson.A, 0, len(filters))
	for _, f := range filters {
		clauses = append(clauses, filterClause(f))
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.D)
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

func filterClause(f xgeo.Filter) bson.D {
	if f.Op == xgeo.OpEquals {
		return bson.D{{Key: attrPath(f.Attr), Value: f.Value.Any()}}
	}
	// 范围条件要求数值类型，避免字符串按字典序比较
	cond := bson.D{{Key: "$type", Value: "number"}}
	if f.HasLowerBound() {
		cond = append(cond, bson.E{Key: "$gte", Value: f.Min})
	}
	if f.HasUpperBound() {
		cond = append(cond, bson.E{Key: "$lte", Value: f.Max})
	}
	return bson.D{{Key: attrPath(f.Attr), Value: cond}}
}

// buildPipeline 构建半径查询的聚合管道。
func buildPipeline(q xgeo.RadiusQuery) bson.A {
	geoNear := bson.D{
		{Key: "near", Value: pointOf(q.Center)},
		{Key: "distanceField", Value: fieldDist},
		{Key: "maxDistance", Value: q.RadiusMeters},
		{Key: "spherical", Value: true},
		{Key: "key", Value: fieldLocation},
		{Key: "query", Value: buildMatch(q.Filters)},
	}
	pipeline := bson.A{
		bson.D{{Key: "$geoNear", Value: geoNear}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: fieldDist, Value: 1}, {Key: fieldID, Value: 1}}}},
	}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(q.Limit)}})
	}
	return pipeline
}
