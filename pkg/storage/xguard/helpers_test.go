package xguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

var (
	rome = xgeo.MustGeoKey(41.8902, 12.4922)

	errDown = fmt.Errorf("%w: connection refused", xgeo.ErrPrimaryUnavailable)
)

func radius() xgeo.RadiusQuery {
	return xgeo.RadiusQuery{Center: rome, RadiusMeters: 500, Limit: 10}
}

// scriptedStore 按顺序返回 errs 中的错误，用尽后返回 entities。
type scriptedStore struct {
	mu       sync.Mutex
	errs     []error
	entities []xgeo.Entity
	calls    int
	block    bool
}

func (s *scriptedStore) RadiusQuery(ctx context.Context, _ xgeo.RadiusQuery) ([]xgeo.Entity, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return s.entities, nil
}

func (s *scriptedStore) fail(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

func (s *scriptedStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = nil
	s.block = false
}

func (s *scriptedStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// healthStore 额外实现 Health。
type healthStore struct {
	scriptedStore
	err error
}

func (s *healthStore) Health(context.Context) error { return s.err }

func newTestPrimary(t *testing.T, store xgeo.PrimaryStore, opts ...Option) *Primary {
	t.Helper()
	base := []Option{
		WithBackoff(NoBackoff{}),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	p, err := NewPrimary(store, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := p.Close(); err != nil && !errors.Is(err, ErrClosed) {
			t.Errorf("close: %v", err)
		}
	})
	return p
}

type spanRecorder struct {
	mu      sync.Mutex
	started []xmetrics.SpanOptions
	results []xmetrics.Result
}

func (r *spanRecorder) Start(ctx context.Context, opts xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, opts)
	return ctx, recordedSpan{r: r}
}

type recordedSpan struct{ r *spanRecorder }

func (s recordedSpan) End(res xmetrics.Result) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.results = append(s.r.results, res)
}
