package xguard

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xgeo/internal/storageopt"
	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

const guardComponent = "xguard"

// Stats 是保护层的运行统计。
type Stats struct {
	storageopt.QueryStats
	// Attempts 是发往下游的尝试总数，Retries 是其中的重试次数。
	Attempts int64
	Retries  int64
	// Rejected 是被熔断器直接拦截的尝试数。
	Rejected            int64
	State               State
	ConsecutiveFailures uint32
}

// Primary 以重试和熔断包装任意 PrimaryStore，可并发使用。
type Primary struct {
	store    xgeo.PrimaryStore
	options  *Options
	cb       *gobreaker.CircuitBreaker[[]xgeo.Entity]
	detector *storageopt.SlowQueryDetector[SlowQueryInfo]

	queries  storageopt.QueryCounter
	health   storageopt.HealthCounter
	attempts atomic.Int64
	retries  atomic.Int64
	rejected atomic.Int64
	closed   atomic.Bool
}

var (
	_ xgeo.PrimaryStore   = (*Primary)(nil)
	_ xgeo.SchemaProvider = (*Primary)(nil)
)

// NewPrimary 创建保护层。
func NewPrimary(store xgeo.PrimaryStore, opts ...Option) (*Primary, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	detector, err := o.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("xguard: %w", err)
	}
	p := &Primary{store: store, options: o, detector: detector}
	p.cb = p.buildBreaker()
	return p, nil
}

// Schema 透传被包装存储的属性声明，未声明时返回 nil。
func (p *Primary) Schema() *xgeo.Schema {
	if sp, ok := p.store.(xgeo.SchemaProvider); ok {
		return sp.Schema()
	}
	return nil
}

// Unwrap 返回被包装的存储。
func (p *Primary) Unwrap() xgeo.PrimaryStore { return p.store }

// State 返回熔断器当前状态。
func (p *Primary) State() State { return p.cb.State() }

// RadiusQuery 实现 xgeo.PrimaryStore。
func (p *Primary) RadiusQuery(ctx context.Context, q xgeo.RadiusQuery) (entities []xgeo.Entity, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if p.closed.Load() {
		return nil, fmt.Errorf("%w: %w", xgeo.ErrPrimaryUnavailable, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var attempts int
	ctx, span := xmetrics.Start(ctx, p.options.Observer, xmetrics.SpanOptions{
		Component: guardComponent,
		Operation: "radius_query",
		Kind:      xmetrics.KindInternal,
		Attrs: []xmetrics.Attr{
			xmetrics.String("guard.breaker", p.options.Name),
			xmetrics.Float64(xmetrics.AttrRadiusMeters, q.RadiusMeters),
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Int("guard.attempts", attempts),
			xmetrics.String("guard.state", p.cb.State().String()),
			xmetrics.Bool("guard.rejected", IsBreakerError(err)),
		}})
	}()

	var last error
	start := time.Now()
	entities, err = retry.NewWithData[[]xgeo.Entity](p.retryOptions(ctx)...).Do(func() ([]xgeo.Entity, error) {
		attempts++
		if attempts > 1 {
			p.beforeRetry(attempts, last)
		}
		res, aerr := p.attempt(ctx, q)
		last = aerr
		return res, aerr
	})
	p.observe(ctx, q, attempts, storageopt.MeasureOperation(start))
	if err != nil {
		p.queries.IncQueryError()
		return nil, err
	}
	p.queries.IncQuery(len(entities))
	return entities, nil
}

// attempt 经过熔断器发起一次下游调用。
func (p *Primary) attempt(ctx context.Context, q xgeo.RadiusQuery) ([]xgeo.Entity, error) {
	p.attempts.Add(1)
	entities, err := p.cb.Execute(func() ([]xgeo.Entity, error) {
		actx, cancel := p.attemptContext(ctx)
		defer cancel()
		return p.store.RadiusQuery(actx, q)
	})
	if err != nil {
		err = wrapBreakerError(err, p.options.Name)
		if IsBreakerError(err) {
			p.rejected.Add(1)
		}
		return nil, err
	}
	return entities, nil
}

func (p *Primary) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.options.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, p.options.AttemptTimeout)
	}
	return ctx, func() {}
}

func (p *Primary) retryOptions(ctx context.Context) []retry.Option {
	backoff := p.options.Backoff
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(p.options.Attempts)),
		retry.RetryIf(isRetryable),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff.NextDelay(safeUintToInt(n))
		}),
		retry.LastErrorOnly(true),
	}
}

func (p *Primary) beforeRetry(attempt int, last error) {
	p.retries.Add(1)
	p.options.Logger.Warn("primary store attempt failed, retrying",
		"breaker", p.options.Name, "attempt", attempt, "error", last)
	if p.options.OnRetry != nil {
		p.options.OnRetry(attempt, last)
	}
}

// Health 透传被包装存储的健康检查，不经过熔断器。
func (p *Primary) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if p.closed.Load() {
		return ErrClosed
	}
	h, ok := p.store.(interface{ Health(context.Context) error })
	if !ok {
		return nil
	}
	p.health.IncPing()
	ctx, cancel := storageopt.HealthContext(ctx, p.options.HealthTimeout)
	defer cancel()
	if err := h.Health(ctx); err != nil {
		p.health.IncPingError()
		return fmt.Errorf("xguard health: %w", err)
	}
	return nil
}

// Stats 返回统计信息。
func (p *Primary) Stats() Stats {
	return Stats{
		QueryStats:          p.queries.Snapshot(),
		Attempts:            p.attempts.Load(),
		Retries:             p.retries.Load(),
		Rejected:            p.rejected.Load(),
		State:               p.cb.State(),
		ConsecutiveFailures: p.cb.Counts().ConsecutiveFailures,
	}
}

// Close 停止慢查询钩子。被包装的存储由调用方关闭。重复调用返回 ErrClosed。
func (p *Primary) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	p.detector.Close()
	return nil
}

func (p *Primary) observe(ctx context.Context, q xgeo.RadiusQuery, attempts int, d time.Duration) {
	info := SlowQueryInfo{
		Breaker:      p.options.Name,
		RadiusMeters: q.RadiusMeters,
		Filters:      len(q.Filters),
		Limit:        q.Limit,
		Attempts:     attempts,
		Duration:     d,
	}
	if p.detector.MaybeSlowQuery(ctx, info, d) {
		p.queries.IncSlowQuery()
	}
}

func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
