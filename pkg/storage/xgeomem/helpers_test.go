package xgeomem

import (
	"math"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

var rome = xgeo.MustGeoKey(41.8902, 12.4922)

// metersPerDegreeLat 与 haversine 使用的地球半径一致。
const metersPerDegreeLat = 6378137.0 * math.Pi / 180

func northOf(k xgeo.GeoKey, meters float64) xgeo.GeoKey {
	return xgeo.MustGeoKey(k.Lat()+meters/metersPerDegreeLat, k.Lon())
}

func place(id string, key xgeo.GeoKey, cuisine string, rating float64) xgeo.Entity {
	return xgeo.Entity{
		ID:   id,
		Key:  key,
		Kind: "restaurant",
		Attrs: map[string]xgeo.Value{
			"cuisine": xgeo.StringValue(cuisine),
			"rating":  xgeo.NumberValue(rating),
		},
		Props: map[string]string{"name": id},
	}
}

func romePlaces() []xgeo.Entity {
	return []xgeo.Entity{
		place("near", northOf(rome, 120), "italian", 4.5),
		place("mid", northOf(rome, 800), "japanese", 4.0),
		place("far", northOf(rome, 1900), "italian", 3.5),
		place("outside", northOf(rome, 5000), "italian", 5.0),
	}
}

func restaurantSchema() *xgeo.Schema {
	s, err := xgeo.NewIndexManager().
		Declare("cuisine", xgeo.AttrEquality).
		Declare("rating", xgeo.AttrRange).
		Build()
	if err != nil {
		panic(err)
	}
	return s
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func ids(entities []xgeo.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}
