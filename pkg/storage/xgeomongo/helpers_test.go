package xgeomongo

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

func placeDoc(id string, lat, lon float64, cuisine string, rating float64) document {
	return document{
		ID:        id,
		Location:  geoPoint{Type: "Point", Coordinates: []float64{lon, lat}},
		Kind:      "restaurant",
		Attrs:     map[string]any{"cuisine": cuisine, "rating": rating, "is_active": true},
		Props:     map[string]string{"name": "Trattoria " + id},
		UpdatedAt: updatedAt,
		Dist:      42,
	}
}

func newTestStore(t *testing.T, coll *fakeCollection, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithSchema(restaurantSchema(t))}, opts...)
	s, err := newStore(coll, opts...)
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
