package xwarm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/storage/xgeomem"
)

var (
	rome  = xgeo.MustGeoKey(41.8902, 12.4922)
	milan = xgeo.MustGeoKey(45.4642, 9.1900)

	discard = slog.New(slog.DiscardHandler)
)

const metersPerDegreeLat = 6378137.0 * math.Pi / 180

func northOf(k xgeo.GeoKey, meters float64) xgeo.GeoKey {
	return xgeo.MustGeoKey(k.Lat()+meters/metersPerDegreeLat, k.Lon())
}

func place(id string, key xgeo.GeoKey, cuisine string) xgeo.Entity {
	return xgeo.Entity{
		ID:    id,
		Key:   key,
		Kind:  "restaurant",
		Attrs: map[string]xgeo.Value{"cuisine": xgeo.StringValue(cuisine)},
	}
}

func cuisineSchema(t *testing.T) *xgeo.Schema {
	t.Helper()
	s, err := xgeo.NewIndexManager().Declare("cuisine", xgeo.AttrEquality).Build()
	require.NoError(t, err)
	return s
}

// seededStore 返回包含罗马与米兰若干餐厅的进程内主存储。
func seededStore(t *testing.T) *xgeomem.Store {
	t.Helper()
	s := xgeomem.NewStore(xgeomem.WithSchema(cuisineSchema(t)))
	require.NoError(t, s.Upsert(
		place("rome-1", northOf(rome, 100), "italian"),
		place("rome-2", northOf(rome, 300), "japanese"),
		place("rome-3", northOf(rome, 900), "italian"),
		place("milan-1", northOf(milan, 200), "italian"),
		place("far", northOf(rome, 50_000), "italian"),
	))
	return s
}

func romeRegion() Region {
	return Region{Name: "rome", Center: rome, Radius: xgeo.Km(2)}
}

func milanRegion() Region {
	return Region{Name: "milan", Center: milan, Radius: xgeo.Km(2)}
}

// recordingPopulator 记录每次 Populate 的批次。
type recordingPopulator struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (p *recordingPopulator) Populate(_ context.Context, entities []xgeo.Entity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	p.batches = append(p.batches, ids)
	return nil
}

func (p *recordingPopulator) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

// failingCenterStore 对指定中心的查询返回错误，其余委托给 inner。
type failingCenterStore struct {
	inner  xgeo.PrimaryStore
	center xgeo.GeoKey
	err    error
}

func (s *failingCenterStore) RadiusQuery(ctx context.Context, q xgeo.RadiusQuery) ([]xgeo.Entity, error) {
	if q.Center == s.center {
		return nil, s.err
	}
	return s.inner.RadiusQuery(ctx, q)
}

var errBoom = errors.New("boom")

func newRedisClient(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newRedisLocker(t *testing.T, client redis.UniversalClient) *RedisLocker {
	t.Helper()
	l, err := NewRedisLocker([]redis.UniversalClient{client})
	require.NoError(t, err)
	return l
}
