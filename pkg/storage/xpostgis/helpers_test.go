package xpostgis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

var (
	rome      = xgeo.MustGeoKey(41.9028, 12.4964)
	updatedAt = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
)

func restaurantSchema(t *testing.T) *xgeo.Schema {
	t.Helper()
	s, err := xgeo.NewIndexManager().
		Declare("cuisine", xgeo.AttrEquality).
		Declare("is_active", xgeo.AttrEquality).
		Declare("rating", xgeo.AttrRange).
		Build()
	require.NoError(t, err)
	return s
}

// placeRow 按 selectColumns 的列顺序构造一行。
func placeRow(id string, lat, lon float64, attrs string) []any {
	return []any{id, lat, lon, "restaurant", []byte(attrs), []byte(`{"name":"Trattoria ` + id + `"}`), updatedAt}
}

func newTestStore(t *testing.T, db *fakeDB, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithSchema(restaurantSchema(t))}, opts...)
	s, err := newStore(db, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ids(entities []xgeo.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}
