package xgeoredis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xgeocache"
	"github.com/omeyang/xgeo/pkg/storage/xgeomem"
)

// TestCoordinator_RedisFastIndex 以 Redis 为 FastIndex 的端到端流程：回源、回写、命中。
func TestCoordinator_RedisFastIndex(t *testing.T) {
	ctx := context.Background()
	schema := restaurantSchema(t)
	idx, mr := newTestIndex(t)

	store := xgeomem.NewStore(xgeomem.WithSchema(schema), xgeomem.WithClock(func() time.Time { return testNow }))
	require.NoError(t, store.Upsert(
		restaurant("near", northOf(rome, 120), "italian", 4.6),
		restaurant("mid", northOf(rome, 800), "italian", 4.2),
		restaurant("far", northOf(rome, 1900), "italian", 3.9),
		restaurant("ramen", northOf(rome, 400), "japanese", 4.8),
	))

	c, err := xgeocache.New(idx, store, xgeocache.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	defer c.Close()

	spec := xgeo.QuerySpec{
		Center:  rome,
		Radius:  xgeo.Km(2),
		Filters: []xgeo.Filter{xgeo.Eq("cuisine", xgeo.StringValue("italian"))},
	}

	res, err := c.Query(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, xgeo.SourcePrimaryStore, res.Source)
	assert.Equal(t, []string{"near", "mid", "far"}, res.IDs())

	require.Eventually(t, func() bool {
		st := c.Stats()
		return st.Populates == 1 && st.PendingWriteBacks == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, mr.Exists(idx.keys.entity("far")))

	res, err = c.Query(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, xgeo.SourceFastIndex, res.Source)
	assert.Equal(t, []string{"near", "mid", "far"}, res.IDs())
	for i, want := range []float64{0.12, 0.8, 1.9} {
		assert.InDelta(t, want, res.Hits[i].Distance, 1e-3)
	}

	// Redis 故障时查询仍由 PrimaryStore 回答
	mr.Close()
	res, err = c.Query(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, xgeo.SourcePrimaryStore, res.Source)
	assert.Equal(t, uint64(1), c.Stats().IndexErrors)
}
