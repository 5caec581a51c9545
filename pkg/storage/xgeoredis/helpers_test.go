package xgeoredis

import (
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

var rome = xgeo.MustGeoKey(41.8902, 12.4922)

const metersPerDegreeLat = 6378137.0 * math.Pi / 180

func northOf(k xgeo.GeoKey, meters float64) xgeo.GeoKey {
	return xgeo.MustGeoKey(k.Lat()+meters/metersPerDegreeLat, k.Lon())
}

func restaurant(id string, key xgeo.GeoKey, cuisine string, rating float64) xgeo.Entity {
	return xgeo.Entity{
		ID:   id,
		Key:  key,
		Kind: "restaurant",
		Attrs: map[string]xgeo.Value{
			"cuisine":   xgeo.StringValue(cuisine),
			"rating":    xgeo.NumberValue(rating),
			"is_active": xgeo.BoolValue(true),
		},
		Props: map[string]string{"name": "Trattoria " + id},
	}
}

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

var testNow = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

// newTestIndex 创建连接 miniredis 的索引。
func newTestIndex(t *testing.T, opts ...Option) (*Index, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		PoolSize:     4,
		MaxRetries:   -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	opts = append([]Option{WithSchema(restaurantSchema(t)), WithClock(func() time.Time { return testNow })}, opts...)
	idx, err := New(client, opts...)
	require.NoError(t, err)
	return idx, mr
}

func ids(entities []xgeo.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}
