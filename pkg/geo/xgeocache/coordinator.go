package xgeocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xstale"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

//go:generate mockgen -destination=mock_store_test.go -package=xgeocache github.com/omeyang/xgeo/pkg/geo/xgeo FastIndex,PrimaryStore

const componentName = "xgeocache"

// 查询结果分类，作为观测属性 outcome 的取值。
const (
	outcomeHit       = "hit"
	outcomeMiss      = "miss"
	outcomeBypass    = "bypass"
	outcomeDegraded  = "degraded"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeInvalid   = "invalid"
)

// Coordinator 编排缓存优先的地理检索。可被任意数量的 goroutine 并发使用。
type Coordinator struct {
	index   xgeo.FastIndex
	primary xgeo.PrimaryStore

	opts      *Options
	schema    *xgeo.Schema
	staleness xstale.Policy
	logger    *slog.Logger

	stats statsCollector
	group singleflight.Group
	pool  *workerPool[writeBackJob]
	errs  chan WriteBackError

	closeMu sync.RWMutex
	closed  atomic.Bool

	// errsMu 保护 errs 的关闭；errsClosed 之后的回写错误只计数
	errsMu     sync.RWMutex
	errsClosed bool

	flights flightRegistry
}

// New 创建协调器并启动回写 worker。使用完毕后必须调用 Close。
func New(index xgeo.FastIndex, primary xgeo.PrimaryStore, opts ...Option) (*Coordinator, error) {
	if index == nil {
		return nil, ErrNilIndex
	}
	if primary == nil {
		return nil, ErrNilPrimary
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if err := o.Config.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		index:     index,
		primary:   primary,
		opts:      o,
		schema:    o.Schema,
		staleness: o.Staleness,
		logger:    o.Logger,
		errs:      make(chan WriteBackError, o.ErrorBufferSize),
	}
	if c.staleness == nil {
		c.staleness = xstale.NewMaxAge(o.MaxAge)
	}
	if c.schema == nil {
		if sp, ok := index.(xgeo.SchemaProvider); ok {
			c.schema = sp.Schema()
		}
	}
	c.pool = newWorkerPool(o.WriteBackWorkers, o.WriteBackQueueSize, c.handleWriteBack, c.handleWriteBackPanic)
	return c, nil
}

// Stats 返回统计信息快照。
func (c *Coordinator) Stats() Stats {
	return c.stats.snapshot()
}

// StalenessPolicy 返回当前使用的过期策略。
func (c *Coordinator) StalenessPolicy() xstale.Policy {
	return c.staleness
}

// WriteBackErrors 返回回写错误通道。投递是非阻塞的；Close 后通道被关闭。
func (c *Coordinator) WriteBackErrors() <-chan WriteBackError {
	return c.errs
}

// Invalidate 立即从 FastIndex 删除实体，供权威数据在缓存填充路径之外变更时调用。
func (c *Coordinator) Invalidate(ctx context.Context, id string) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if id == "" {
		return xgeo.ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := xmetrics.Start(ctx, c.opts.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "invalidate",
		Attrs:     []xmetrics.Attr{xmetrics.String("entity_id", id)},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if err := c.index.Invalidate(ctx, id); err != nil {
		return wrapIndexErr(err)
	}
	return nil
}

// Populate 同步写入实体（预热入口），LastRefreshed 由索引设为当前时间。
// 失败返回包装 xgeo.ErrPopulateFailed 的错误。
func (c *Coordinator) Populate(ctx context.Context, entities []xgeo.Entity) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if len(entities) == 0 {
		return nil
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := xmetrics.Start(ctx, c.opts.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "populate",
		Attrs:     []xmetrics.Attr{xmetrics.Int("entities", len(entities))},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if err := c.index.Populate(ctx, cloneEntities(entities), c.opts.DefaultTTL); err != nil {
		c.stats.populateFailures.Add(1)
		if isContextErr(err) && ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", xgeo.ErrPopulateFailed, err)
	}
	c.stats.populates.Add(1)
	return nil
}

// Close 停止接受回写，等待已排队的回写完成后关闭错误通道。
// Close 是幂等的，可与 Query 并发调用：Close 之后完成回源的查询照常返回，
// 其回写记为失败，错误计入 Stats.DroppedErrors。
func (c *Coordinator) Close() error {
	c.closeMu.Lock()
	if c.closed.Swap(true) {
		c.closeMu.Unlock()
		return nil
	}
	c.closeMu.Unlock()

	c.pool.stop()

	c.errsMu.Lock()
	c.errsClosed = true
	close(c.errs)
	c.errsMu.Unlock()
	return nil
}

func (c *Coordinator) now() time.Time {
	return c.opts.Clock()
}

func wrapIndexErr(err error) error {
	if err == nil || isContextErr(err) || errors.Is(err, xgeo.ErrIndexUnavailable) || errors.Is(err, xgeo.ErrInvalidQuery) {
		return err
	}
	return fmt.Errorf("%w: %w", xgeo.ErrIndexUnavailable, err)
}

func wrapPrimaryErr(err error) error {
	if err == nil || errors.Is(err, xgeo.ErrPrimaryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", xgeo.ErrPrimaryUnavailable, err)
}

func cloneEntities(in []xgeo.Entity) []xgeo.Entity {
	out := make([]xgeo.Entity, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

func (c *Coordinator) logWarn(ctx context.Context, msg string, args ...any) {
	c.logger.WarnContext(ctx, msg, args...)
}

func (c *Coordinator) logDebug(ctx context.Context, msg string, args ...any) {
	c.logger.DebugContext(ctx, msg, args...)
}
