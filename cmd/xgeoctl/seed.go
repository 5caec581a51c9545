package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// seedEntity 是种子文件中一条实体的格式。
type seedEntity struct {
	ID    string                `json:"id"`
	Lat   float64               `json:"lat"`
	Lon   float64               `json:"lon"`
	Kind  string                `json:"kind,omitempty"`
	Attrs map[string]xgeo.Value `json:"attrs,omitempty"`
	Props map[string]string     `json:"props,omitempty"`
}

// readSeedFile 读取 JSON 实体数组。刷新时间由写入的存储决定。
func readSeedFile(path string) ([]xgeo.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var raw []seedEntity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	entities := make([]xgeo.Entity, 0, len(raw))
	for i, r := range raw {
		key, err := xgeo.NewGeoKey(r.Lat, r.Lon)
		if err != nil {
			return nil, fmt.Errorf("seed file %s: entry %d (%s): %w", path, i, r.ID, err)
		}
		e := xgeo.Entity{
			ID:    r.ID,
			Key:   key,
			Kind:  r.Kind,
			Attrs: r.Attrs,
			Props: r.Props,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("seed file %s: entry %d: %w", path, i, err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}
