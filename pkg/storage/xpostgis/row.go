package xpostgis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// row 是实体在表中的存储形式。
type row struct {
	ID        string
	Lat, Lon  float64
	Kind      string
	Attrs     []byte
	Props     []byte
	UpdatedAt time.Time
}

func toRow(e xgeo.Entity, updatedAt time.Time) (row, error) {
	attrs := e.Attrs
	if attrs == nil {
		attrs = map[string]xgeo.Value{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return row{}, fmt.Errorf("xpostgis: encode attrs of %s: %w", e.ID, err)
	}
	props := e.Props
	if props == nil {
		props = map[string]string{}
	}
	rawProps, err := json.Marshal(props)
	if err != nil {
		return row{}, fmt.Errorf("xpostgis: encode props of %s: %w", e.ID, err)
	}
	return row{
		ID:        e.ID,
		Lat:       e.Key.Lat(),
		Lon:       e.Key.Lon(),
		Kind:      e.Kind,
		Attrs:     rawAttrs,
		Props:     rawProps,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

// args 按 buildUpsert 的列顺序返回参数。
func (r row) args() []any {
	return []any{r.ID, r.Lon, r.Lat, r.Kind, string(r.Attrs), string(r.Props), r.UpdatedAt}
}

func (r *row) scan(rs rowScanner) error {
	return rs.Scan(&r.ID, &r.Lat, &r.Lon, &r.Kind, &r.Attrs, &r.Props, &r.UpdatedAt)
}

func (r row) entity() (xgeo.Entity, error) {
	key, err := xgeo.NewGeoKey(r.Lat, r.Lon)
	if err != nil {
		return xgeo.Entity{}, fmt.Errorf("%w: %s: %w", ErrCorruptRow, r.ID, err)
	}
	e := xgeo.Entity{ID: r.ID, Key: key, Kind: r.Kind, LastRefreshed: r.UpdatedAt}
	if len(r.Attrs) > 0 {
		if err := json.Unmarshal(r.Attrs, &e.Attrs); err != nil {
			return xgeo.Entity{}, fmt.Errorf("%w: %s attrs: %w", ErrCorruptRow, r.ID, err)
		}
	}
	if len(r.Props) > 0 {
		if err := json.Unmarshal(r.Props, &e.Props); err != nil {
			return xgeo.Entity{}, fmt.Errorf("%w: %s props: %w", ErrCorruptRow, r.ID, err)
		}
	}
	if len(e.Attrs) == 0 {
		e.Attrs = nil
	}
	if len(e.Props) == 0 {
		e.Props = nil
	}
	return e, nil
}
