package xgeoredis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// payload 是 P:ent:<id> 中保存的实体。坐标保存原始值，GEO 集合中的坐标有 52 位精度损失。
type payload struct {
	ID          string                `json:"id"`
	Lat         float64               `json:"lat"`
	Lon         float64               `json:"lon"`
	Kind        string                `json:"kind,omitempty"`
	Attrs       map[string]xgeo.Value `json:"attrs,omitempty"`
	Props       map[string]string     `json:"props,omitempty"`
	RefreshedAt time.Time             `json:"refreshed_at"`
}

func encodeEntity(e xgeo.Entity) ([]byte, error) {
	return json.Marshal(payload{
		ID:          e.ID,
		Lat:         e.Key.Lat(),
		Lon:         e.Key.Lon(),
		Kind:        e.Kind,
		Attrs:       e.Attrs,
		Props:       e.Props,
		RefreshedAt: e.LastRefreshed,
	})
}

func decodeEntity(data []byte) (xgeo.Entity, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return xgeo.Entity{}, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	}
	key, err := xgeo.NewGeoKey(p.Lat, p.Lon)
	if err != nil {
		return xgeo.Entity{}, fmt.Errorf("%w: %s: %w", ErrCorruptPayload, p.ID, err)
	}
	return xgeo.Entity{
		ID:            p.ID,
		Key:           key,
		Kind:          p.Kind,
		Attrs:         p.Attrs,
		Props:         p.Props,
		LastRefreshed: p.RefreshedAt,
	}, nil
}
