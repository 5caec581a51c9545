package xwarm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

const componentName = "xwarm"

// Populator 接收预热写入，xgeocache.Coordinator 实现了该接口。
type Populator interface {
	Populate(ctx context.Context, entities []xgeo.Entity) error
}

// Report 是单个区域的预热结果。
type Report struct {
	Region   string
	Entities int
	Duration time.Duration
	Err      error
}

// Warmer 把 PrimaryStore 中指定区域的实体写入缓存。
type Warmer struct {
	primary xgeo.PrimaryStore
	target  Populator
	opts    *options
	regions map[string]Region
	order   []string
}

// NewWarmer 创建预热器。区域在创建时校验；若 primary 声明了 Schema，
// 区域过滤条件也按 Schema 校验。
func NewWarmer(primary xgeo.PrimaryStore, target Populator, opts ...Option) (*Warmer, error) {
	if primary == nil {
		return nil, ErrNilPrimary
	}
	if target == nil {
		return nil, ErrNilTarget
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var schema *xgeo.Schema
	if sp, ok := primary.(xgeo.SchemaProvider); ok {
		schema = sp.Schema()
	}

	w := &Warmer{
		primary: primary,
		target:  target,
		opts:    o,
		regions: make(map[string]Region, len(o.regions)),
	}
	for _, r := range o.regions {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if err := schema.Validate(r.Filters); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRegion, r.Name, err)
		}
		if _, dup := w.regions[r.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRegion, r.Name)
		}
		w.regions[r.Name] = r
		w.order = append(w.order, r.Name)
	}
	return w, nil
}

// Regions 按配置顺序返回全部区域。
func (w *Warmer) Regions() []Region {
	out := make([]Region, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.regions[name])
	}
	return out
}

// Region 按名称查找区域。
func (w *Warmer) Region(name string) (Region, bool) {
	r, ok := w.regions[name]
	return r, ok
}

// WarmByName 预热指定名称的区域。
func (w *Warmer) WarmByName(ctx context.Context, name string) (Report, error) {
	r, ok := w.regions[name]
	if !ok {
		return Report{Region: name}, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	return w.WarmRegion(ctx, r)
}

// WarmRegion 查询 PrimaryStore 并把结果写入缓存。
// 主存储失败返回包装 xgeo.ErrPrimaryUnavailable 的错误，写入失败返回包装 xgeo.ErrPopulateFailed 的错误。
func (w *Warmer) WarmRegion(ctx context.Context, r Region) (rep Report, err error) {
	rep.Region = r.Name
	if ctx == nil {
		return rep, ErrNilContext
	}
	if err := r.Validate(); err != nil {
		return rep, err
	}

	ctx, span := xmetrics.Start(ctx, w.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "warm_region",
		Attrs: []xmetrics.Attr{
			xmetrics.String("region", r.Name),
			xmetrics.Float64(xmetrics.AttrRadiusMeters, r.Radius.Meters()),
		},
	})
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		rep.Err = err
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(xmetrics.AttrResults, rep.Entities)}})
	}()

	entities, err := w.primary.RadiusQuery(ctx, r.query())
	if err != nil {
		if !errors.Is(err, xgeo.ErrPrimaryUnavailable) && !errors.Is(err, xgeo.ErrInvalidQuery) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", xgeo.ErrPrimaryUnavailable, err)
		}
		return rep, fmt.Errorf("xwarm: region %s: %w", r.Name, err)
	}

	for batch := range slices.Chunk(entities, w.opts.batchSize) {
		if err := w.target.Populate(ctx, batch); err != nil {
			if !errors.Is(err, xgeo.ErrPopulateFailed) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", xgeo.ErrPopulateFailed, err)
			}
			return rep, fmt.Errorf("xwarm: region %s: %w", r.Name, err)
		}
		rep.Entities += len(batch)
	}

	w.opts.logger.InfoContext(ctx, "region warmed",
		"region", r.Name, "entities", rep.Entities, "duration", time.Since(start))
	return rep, nil
}

// WarmAll 预热全部区域。单个区域失败不会中断其他区域；
// 返回的报告与 Regions 顺序一致，错误以 errors.Join 汇总。
func (w *Warmer) WarmAll(ctx context.Context) ([]Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	reports := make([]Report, len(w.order))

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(w.opts.concurrency)
	for i, name := range w.order {
		r := w.regions[name]
		g.Go(func() error {
			rep, err := w.WarmRegion(ctx, r)
			reports[i] = rep
			if err != nil {
				w.opts.logger.WarnContext(ctx, "region warm-up failed", "region", r.Name, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}
