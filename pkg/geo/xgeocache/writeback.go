package xgeocache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

// WriteBackError 描述一次失败的异步回写。Err 总是包装 xgeo.ErrPopulateFailed。
type WriteBackError struct {
	// JobID 是回写任务 ID，与日志中的 job_id 对应。
	JobID string
	// IDs 是本次回写涉及的实体 ID。
	IDs []string
	Err error
	At  time.Time
}

func (e WriteBackError) Error() string {
	return fmt.Sprintf("xgeocache: write-back %s (%d entities): %v", e.JobID, len(e.IDs), e.Err)
}

func (e WriteBackError) Unwrap() error { return e.Err }

type writeBackJob struct {
	id       string
	ctx      context.Context
	entities []xgeo.Entity
}

// onceFlag 只允许第一个 take 成功。
type onceFlag struct {
	done atomic.Bool
}

func (f *onceFlag) take() bool {
	return f.done.CompareAndSwap(false, true)
}

// submitWriteBack 提交异步回写。ctx 仅用于携带 Value，回写不受调用方取消影响。
func (c *Coordinator) submitWriteBack(ctx context.Context, entities []xgeo.Entity) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	job := writeBackJob{
		id:       uuid.NewString(),
		ctx:      contextDetached(ctx),
		entities: entities,
	}
	if c.closed.Load() {
		c.failWriteBack(job, ErrClosed)
		return
	}

	c.stats.pending.Add(1)
	if !c.pool.submit(job) {
		c.stats.pending.Add(-1)
		c.failWriteBack(job, ErrWriteBackRejected)
	}
}

// handleWriteBack 在 worker 中执行回写，完成或失败后才更新统计。
func (c *Coordinator) handleWriteBack(job writeBackJob) {
	defer c.stats.pending.Add(-1)

	ctx, cancel := context.WithTimeout(job.ctx, c.opts.WriteBackTimeout)
	defer cancel()

	ctx, span := xmetrics.Start(ctx, c.opts.Observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "write_back",
		Attrs: []xmetrics.Attr{
			xmetrics.String("job_id", job.id),
		},
	})
	err := c.index.Populate(ctx, job.entities, c.opts.DefaultTTL)
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(xmetrics.AttrResults, len(job.entities))}})

	if err != nil {
		c.failWriteBack(job, err)
		return
	}
	c.stats.populates.Add(1)
}

func (c *Coordinator) handleWriteBackPanic(job writeBackJob, err error) {
	c.failWriteBack(job, err)
}

// failWriteBack 记录失败并非阻塞投递到错误通道。
func (c *Coordinator) failWriteBack(job writeBackJob, cause error) {
	c.stats.populateFailures.Add(1)

	ids := make([]string, len(job.entities))
	for i, e := range job.entities {
		ids[i] = e.ID
	}
	wbErr := WriteBackError{
		JobID: job.id,
		IDs:   ids,
		Err:   fmt.Errorf("%w: %w", xgeo.ErrPopulateFailed, cause),
		At:    c.now(),
	}
	c.logWarn(job.ctx, "xgeocache: write-back failed",
		"job_id", job.id, "entities", len(ids), "error", cause)

	c.deliver(wbErr)
}

// deliver 非阻塞投递；通道已满或已关闭时丢弃并计数。
func (c *Coordinator) deliver(wbErr WriteBackError) {
	c.errsMu.RLock()
	defer c.errsMu.RUnlock()
	if c.errsClosed {
		c.stats.droppedErrors.Add(1)
		return
	}
	select {
	case c.errs <- wbErr:
	default:
		c.stats.droppedErrors.Add(1)
	}
}
