package xwarm

import (
	"fmt"
	"slices"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// Region 是一个预热区域。
type Region struct {
	Name    string
	Center  xgeo.GeoKey
	Radius  xgeo.Distance
	Filters []xgeo.Filter
	// Limit 限制写入的实体数，0 表示不限制。
	Limit int
}

// Validate 检查区域定义。失败返回同时匹配 ErrInvalidRegion 与具体原因的错误。
func (r Region) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRegion)
	}
	if !r.Center.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRegion, r.Name, xgeo.ErrInvalidGeoKey)
	}
	if err := r.Radius.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRegion, r.Name, err)
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRegion, r.Name, xgeo.ErrInvalidLimit)
	}
	for _, f := range r.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidRegion, r.Name, err)
		}
	}
	return nil
}

func (r Region) query() xgeo.RadiusQuery {
	return xgeo.RadiusQuery{
		Center:       r.Center,
		RadiusMeters: r.Radius.Meters(),
		Filters:      slices.Clone(r.Filters),
		Limit:        r.Limit,
	}
}
