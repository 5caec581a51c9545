package xgeocache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xstale"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

// queryPlan 是校验并规范化后的查询。
type queryPlan struct {
	query    xgeo.RadiusQuery
	unit     xgeo.Unit
	minFresh int
	bypass   bool
}

// probeResult 是缓存探测并按过期策略划分后的结果。
type probeResult struct {
	fresh []xgeo.Hit
	stale []xgeo.Hit
}

func (p probeResult) cached() []xgeo.Hit {
	out := make([]xgeo.Hit, 0, len(p.fresh)+len(p.stale))
	out = append(out, p.fresh...)
	return append(out, p.stale...)
}

// primaryFlight 是一次（可能被多个调用方共享的）回源结果。
// writeBack 保证共享结果只回写一次。
type primaryFlight struct {
	entities  []xgeo.Entity
	writeBack onceFlag
}

// Query 执行缓存优先的半径检索。
//
// 非法请求在访问任何存储前返回 xgeo.ErrInvalidQuery；
// ctx 已取消时立即返回 ctx.Err()，不访问任何存储。
func (c *Coordinator) Query(ctx context.Context, spec xgeo.QuerySpec) (res *xgeo.QueryResult, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	plan, err := c.validate(spec)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, c.opts.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "query",
		Attrs: []xmetrics.Attr{
			xmetrics.Float64(xmetrics.AttrRadiusMeters, plan.query.RadiusMeters),
			xmetrics.Int("filters", len(plan.query.Filters)),
			xmetrics.Int(xmetrics.AttrLimit, plan.query.Limit),
		},
	})

	var outcome string
	res, outcome, err = c.run(ctx, plan)
	attrs := []xmetrics.Attr{
		xmetrics.String(xmetrics.AttrOutcome, outcome),
		xmetrics.Int(xmetrics.AttrResults, res.Len()),
	}
	if res != nil {
		attrs = append(attrs, xmetrics.String(xmetrics.AttrSource, res.Source.String()))
	}
	span.End(xmetrics.Result{Err: err, Attrs: attrs})
	return res, err
}

func (c *Coordinator) run(ctx context.Context, plan queryPlan) (*xgeo.QueryResult, string, error) {
	start := time.Now()

	if plan.bypass {
		c.stats.bypassed.Add(1)
		res, outcome, err := c.fallback(ctx, plan, probeResult{})
		if outcome == outcomeMiss {
			outcome = outcomeBypass
		}
		return res, outcome, err
	}

	probe, err := c.probe(ctx, plan)
	if err != nil {
		return nil, outcomeCancelled, err
	}

	if len(probe.fresh) > 0 && len(probe.fresh) >= plan.minFresh {
		c.stats.recordHit(time.Since(start))
		c.logDebug(ctx, "xgeocache: cache hit",
			"fresh", len(probe.fresh), "stale", len(probe.stale), "elapsed", time.Since(start))
		return c.result(probe.fresh, xgeo.SourceFastIndex, plan, false), outcomeHit, nil
	}

	c.stats.misses.Add(1)
	res, outcome, err := c.fallback(ctx, plan, probe)
	if outcome != outcomeCancelled && outcome != outcomeInvalid {
		c.stats.recordMissLatency(time.Since(start))
	}
	c.logDebug(ctx, "xgeocache: cache miss",
		"fresh", len(probe.fresh), "stale", len(probe.stale),
		"outcome", outcome, "elapsed", time.Since(start))
	return res, outcome, err
}

// =============================================================================
// validate
// =============================================================================

// validate 校验请求并规范化 limit / minFresh / 单位。
func (c *Coordinator) validate(spec xgeo.QuerySpec) (queryPlan, error) {
	if err := spec.Validate(); err != nil {
		return queryPlan{}, err
	}
	if err := c.schema.Validate(spec.Filters); err != nil {
		return queryPlan{}, err
	}

	limit := spec.Limit
	if limit == 0 {
		limit = c.opts.DefaultLimit
	}
	limit = min(limit, c.opts.MaxResultLimit)

	minFresh := spec.MinFresh
	if minFresh == 0 {
		minFresh = c.opts.MinFreshResults
	}
	// 超过 limit 的要求永远无法由缓存满足
	minFresh = min(max(minFresh, 1), limit)

	return queryPlan{
		query: xgeo.RadiusQuery{
			Center:       spec.Center,
			RadiusMeters: spec.Radius.Meters(),
			Filters:      append([]xgeo.Filter(nil), spec.Filters...),
			Limit:        limit,
		},
		unit:     spec.ResultUnit(),
		minFresh: minFresh,
		bypass:   spec.BypassCache,
	}, nil
}

// =============================================================================
// probe + stale-check
// =============================================================================

// probe 查询 FastIndex 并按过期策略划分。索引错误被吸收为空结果；
// 只有调用方 ctx 已结束时才返回错误。
func (c *Coordinator) probe(ctx context.Context, plan queryPlan) (probeResult, error) {
	entities, err := c.index.RadiusQuery(ctx, plan.query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return probeResult{}, ctxErr
		}
		c.stats.indexErrors.Add(1)
		c.logWarn(ctx, "xgeocache: fast index unavailable, falling back to primary store",
			"error", err)
		return probeResult{}, nil
	}
	return c.partition(plan, entities), nil
}

// partition 按过期策略把命中分为 fresh 与 stale，两者各自按距离排序。
func (c *Coordinator) partition(plan queryPlan, entities []xgeo.Entity) probeResult {
	now := c.now()
	var out probeResult
	for _, e := range entities {
		if !e.Key.Valid() {
			continue
		}
		h := xgeo.NewHit(plan.query.Center, e, plan.unit, xgeo.SourceFastIndex, now)
		if xstale.Check(c.staleness, e, now) {
			h.Stale = true
			out.stale = append(out.stale, h)
			continue
		}
		out.fresh = append(out.fresh, h)
	}
	xgeo.SortHits(out.fresh)
	xgeo.SortHits(out.stale)
	return out
}

// =============================================================================
// fallback
// =============================================================================

// fallback 查询 PrimaryStore；失败时尽可能以缓存数据降级返回。
func (c *Coordinator) fallback(ctx context.Context, plan queryPlan, probe probeResult) (*xgeo.QueryResult, string, error) {
	flight, err := c.loadPrimary(ctx, plan)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, outcomeCancelled, ctxErr
		}
		if errors.Is(err, xgeo.ErrInvalidQuery) {
			return nil, outcomeInvalid, err
		}

		c.stats.primaryErrors.Add(1)
		if cached := probe.cached(); len(cached) > 0 {
			c.stats.degraded.Add(1)
			c.logWarn(ctx, "xgeocache: primary store unavailable, serving cached data",
				"cached", len(cached), "stale", len(probe.stale), "error", err)
			return c.result(cached, xgeo.SourceFastIndex, plan, true), outcomeDegraded, nil
		}
		return nil, outcomeFailed, wrapPrimaryErr(err)
	}

	now := c.now()
	hits := make([]xgeo.Hit, 0, len(flight.entities))
	for _, e := range flight.entities {
		if !e.Key.Valid() {
			c.logWarn(ctx, "xgeocache: primary store returned entity without valid location", "id", e.ID)
			continue
		}
		e = e.Clone()
		e.LastRefreshed = now
		hits = append(hits, xgeo.NewHit(plan.query.Center, e, plan.unit, xgeo.SourcePrimaryStore, now))
	}
	res := c.result(hits, xgeo.SourcePrimaryStore, plan, false)

	// 已取消的读路径不回写
	if !plan.bypass && len(res.Hits) > 0 && ctx.Err() == nil && flight.writeBack.take() {
		entities := make([]xgeo.Entity, len(res.Hits))
		for i, h := range res.Hits {
			entities[i] = h.Entity
		}
		c.submitWriteBack(ctx, entities)
	}
	return res, outcomeMiss, nil
}

// loadPrimary 查询 PrimaryStore。开启 singleflight 时，相同请求的并发回源被合并：
// 共享回源运行在脱离单个调用方取消链、带独立超时的 context 上，
// 调用方取消时立即返回自己的 ctx.Err()；全部等待者都离开后回源被取消。
func (c *Coordinator) loadPrimary(ctx context.Context, plan queryPlan) (*primaryFlight, error) {
	if c.opts.DisableSingleflight {
		loadCtx, cancel := context.WithTimeout(ctx, c.opts.PrimaryTimeout)
		defer cancel()
		return c.callPrimary(loadCtx, plan.query)
	}

	// 回源在所有等待者离开前不受单个调用方取消影响；全部离开后放弃
	key := fingerprint(plan)
	f := c.flights.join(ctx, key)
	defer c.flights.leave(key, f, c.group.Forget)

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(f.ctx, c.opts.PrimaryTimeout)
		defer cancel()
		return c.callPrimary(loadCtx, plan.query)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		flight, ok := r.Val.(*primaryFlight)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected singleflight result %T", xgeo.ErrPrimaryUnavailable, r.Val)
		}
		return flight, nil
	}
}

// callPrimary 调用 PrimaryStore，并把实现中的 panic 转为错误。
func (c *Coordinator) callPrimary(ctx context.Context, q xgeo.RadiusQuery) (flight *primaryFlight, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %w: %v", xgeo.ErrPrimaryUnavailable, ErrPrimaryPanic, r)
		}
	}()

	ctx, span := xmetrics.Start(ctx, c.opts.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "primary_query",
		Kind:      xmetrics.KindClient,
	})
	entities, err := c.primary.RadiusQuery(ctx, q)
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(xmetrics.AttrResults, len(entities))}})
	if err != nil {
		return nil, err
	}
	return &primaryFlight{entities: entities}, nil
}

// result 排序、截断到 limit 并组装结果。
func (c *Coordinator) result(hits []xgeo.Hit, src xgeo.Source, plan queryPlan, degraded bool) *xgeo.QueryResult {
	xgeo.SortHits(hits)
	if len(hits) > plan.query.Limit {
		hits = hits[:plan.query.Limit]
	}
	return &xgeo.QueryResult{
		Hits:     hits,
		Source:   src,
		Unit:     plan.unit,
		Degraded: degraded,
	}
}

// fingerprint 是规范化查询的 singleflight key。
// key 是查询的完整规范化文本，不同查询的 key 必然不同。
func fingerprint(plan queryPlan) string {
	q := plan.query
	var b strings.Builder
	writeFloat(&b, q.Center.Lat())
	writeFloat(&b, q.Center.Lon())
	writeFloat(&b, q.RadiusMeters)
	b.WriteString(strconv.Itoa(q.Limit))
	for _, f := range q.Filters {
		b.WriteByte(';')
		b.WriteString(strconv.Quote(f.Attr))
		b.WriteString(f.Op.String())
		b.WriteByte('|')
		b.WriteString(f.Value.Kind().String())
		b.WriteByte('|')
		b.WriteString(strconv.Quote(f.Value.String()))
		b.WriteByte('|')
		writeFloat(&b, f.Min)
		writeFloat(&b, f.Max)
	}
	return b.String()
}

// writeFloat 以最短可往返格式写入 f，并以 '|' 结尾。
func writeFloat(b *strings.Builder, f float64) {
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	b.WriteByte('|')
}
