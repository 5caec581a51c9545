package xgeocache

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

var rome = xgeo.MustGeoKey(41.8902, 12.4922)

const metersPerDegreeLat = 6378137.0 * math.Pi / 180

func northOf(k xgeo.GeoKey, meters float64) xgeo.GeoKey {
	return xgeo.MustGeoKey(k.Lat()+meters/metersPerDegreeLat, k.Lon())
}

func restaurant(id string, key xgeo.GeoKey, cuisine string) xgeo.Entity {
	return xgeo.Entity{
		ID:    id,
		Key:   key,
		Kind:  "restaurant",
		Attrs: map[string]xgeo.Value{"cuisine": xgeo.StringValue(cuisine), "rating": xgeo.NumberValue(4)},
		Props: map[string]string{"name": id},
	}
}

func refreshedAt(e xgeo.Entity, t time.Time) xgeo.Entity {
	e.LastRefreshed = t
	return e
}

func restaurantSchema(t *testing.T) *xgeo.Schema {
	t.Helper()
	s, err := xgeo.NewIndexManager().
		Declare("cuisine", xgeo.AttrEquality).
		Declare("rating", xgeo.AttrRange).
		Build()
	require.NoError(t, err)
	return s
}

func romeSpec() xgeo.QuerySpec {
	return xgeo.QuerySpec{
		Center:  rome,
		Radius:  xgeo.Km(2),
		Unit:    xgeo.UnitKilometers,
		Filters: []xgeo.Filter{xgeo.Eq("cuisine", xgeo.StringValue("italian"))},
	}
}

// testClock 是可手动推进的并发安全时钟。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestCoordinator 创建协调器并在用例结束时关闭。
// Cleanup 后注册先执行，保证回写 worker 在 gomock 校验前退出。
func newTestCoordinator(t *testing.T, index xgeo.FastIndex, primary xgeo.PrimaryStore, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	c, err := New(index, primary, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newMocks(t *testing.T) (*MockFastIndex, *MockPrimaryStore) {
	ctrl := gomock.NewController(t)
	return NewMockFastIndex(ctrl), NewMockPrimaryStore(ctrl)
}

func waitStats(t *testing.T, c *Coordinator, cond func(Stats) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Stats()) }, 2*time.Second, 5*time.Millisecond)
}

func writeBackSettled(s Stats) bool {
	return s.PendingWriteBacks == 0 && s.Populates+s.PopulateFailures > 0
}

// recordingObserver 记录每个跨度的操作名与结束属性。
type recordingObserver struct {
	mu    sync.Mutex
	spans []recordedSpan
}

type recordedSpan struct {
	operation string
	result    xmetrics.Result
}

func (o *recordingObserver) Start(ctx context.Context, opts xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	return ctx, &recordingSpan{obs: o, operation: opts.Operation}
}

func (o *recordingObserver) outcomes(operation string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, s := range o.spans {
		if s.operation != operation {
			continue
		}
		for _, a := range s.result.Attrs {
			if a.Key == xmetrics.AttrOutcome {
				out = append(out, a.Value.(string))
			}
		}
	}
	return out
}

type recordingSpan struct {
	obs       *recordingObserver
	operation string
}

func (s *recordingSpan) End(r xmetrics.Result) {
	s.obs.mu.Lock()
	defer s.obs.mu.Unlock()
	s.obs.spans = append(s.obs.spans, recordedSpan{operation: s.operation, result: r})
}
