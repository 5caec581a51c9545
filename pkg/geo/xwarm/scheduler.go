package xwarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// Job 是一个可调度的任务。
type Job func(ctx context.Context) error

const (
	// WarmJobName 是 AddWarm 注册的任务名。
	WarmJobName = "warm"
	// PruneJobName 是 AddPrune 注册的任务名。
	PruneJobName = "prune"
)

// Scheduler 按 cron 表达式执行预热与清理任务，可选集群互斥。
type Scheduler struct {
	cron   *cron.Cron
	opts   *schedulerOptions
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*scheduledJob

	baseCtx    context.Context
	cancelBase context.CancelFunc
	immediate  sync.WaitGroup
}

type scheduledJob struct {
	name    string
	entryID cron.EntryID
	job     Job
	opts    *jobOptions
	stats   *JobStats
	sched   *Scheduler
}

// NewScheduler 创建调度器。同一任务的上一次执行未结束时，本次触发被跳过。
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With("component", componentName)
	cl := cronLogger{logger: logger}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithParser(o.parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		opts:       o,
		logger:     logger,
		jobs:       make(map[string]*scheduledJob),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

// AddJob 注册任务。name 同时用作集群锁 key，必须唯一。
func (s *Scheduler) AddJob(name, spec string, job Job, opts ...JobOption) (cron.EntryID, error) {
	if job == nil {
		return 0, ErrNilJob
	}
	if name == "" {
		return 0, ErrEmptyJobName
	}
	jo := defaultJobOptions()
	for _, opt := range opts {
		opt(jo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	sj := &scheduledJob{name: name, job: job, opts: jo, stats: &JobStats{Name: name}, sched: s}
	id, err := s.cron.AddJob(spec, sj)
	if err != nil {
		return 0, fmt.Errorf("xwarm: add job %s: %w", name, err)
	}
	sj.entryID = id
	s.jobs[name] = sj
	return id, nil
}

// AddWarm 注册预热任务，每次执行 Warmer.WarmAll。
func (s *Scheduler) AddWarm(spec string, w *Warmer, opts ...JobOption) (cron.EntryID, error) {
	if w == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(WarmJobName, spec, func(ctx context.Context) error {
		_, err := w.WarmAll(ctx)
		return err
	}, opts...)
}

// AddPrune 注册索引清理任务。
func (s *Scheduler) AddPrune(spec string, p xgeo.Pruner, opts ...JobOption) (cron.EntryID, error) {
	if p == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(PruneJobName, spec, func(ctx context.Context) error {
		n, err := p.Prune(ctx)
		if err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "index pruned", "removed", n)
		return nil
	}, opts...)
}

// Remove 注销任务。
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sj, ok := s.jobs[name]; ok {
		s.cron.Remove(sj.entryID)
		delete(s.jobs, name)
	}
}

// RunNow 立即同步执行一次任务，与定时执行共享锁、超时与统计。
// 未获得集群锁时返回 ErrLockNotAcquired。
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	if ctx == nil {
		return ErrNilContext
	}
	sj, ok := s.job(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return sj.execute(ctx)
}

// Start 启动调度，标记了 WithImmediate 的任务立即执行一次。
func (s *Scheduler) Start() {
	s.mu.Lock()
	for _, sj := range s.jobs {
		if sj.opts.immediate {
			s.immediate.Go(sj.Run)
		}
	}
	s.mu.Unlock()
	s.cron.Start()
}

// Stop 停止调度并取消正在执行的任务，等待它们返回或 ctx 结束。
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancelBase()
	done := s.cron.Stop()
	s.immediate.Wait()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries 返回 cron 条目。
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Stats 返回全部任务的统计快照，按任务名排序。
func (s *Scheduler) Stats() []JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobSnapshot, 0, len(s.jobs))
	for _, name := range slices.Sorted(maps.Keys(s.jobs)) {
		out = append(out, s.jobs[name].stats.Snapshot())
	}
	return out
}

// JobStats 返回指定任务的统计。
func (s *Scheduler) JobStats(name string) (*JobStats, bool) {
	sj, ok := s.job(name)
	if !ok {
		return nil, false
	}
	return sj.stats, true
}

func (s *Scheduler) job(name string) (*scheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, ok := s.jobs[name]
	return sj, ok
}

// =============================================================================
// 任务执行
// =============================================================================

// Run 实现 cron.Job。
func (j *scheduledJob) Run() {
	err := j.execute(j.sched.baseCtx)
	if errors.Is(err, ErrLockNotAcquired) {
		j.sched.logger.Debug("lock held elsewhere, skipping run", "job", j.name)
	}
}

func (j *scheduledJob) execute(ctx context.Context) error {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if locker := j.sched.opts.locker; locker != nil {
		handle, err := locker.TryLock(taskCtx, j.name, j.opts.lockTTL)
		if err != nil {
			j.stats.recordSkip()
			j.sched.logger.WarnContext(ctx, "failed to acquire lock", "job", j.name, "error", err)
			return fmt.Errorf("%w: %w", ErrLockNotAcquired, err)
		}
		if handle == nil {
			j.stats.recordSkip()
			return ErrLockNotAcquired
		}
		stopRenew := j.keepAlive(taskCtx, cancel, handle)
		defer func() {
			stopRenew()
			unlockCtx, unlockCancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer unlockCancel()
			if err := handle.Unlock(unlockCtx); err != nil {
				j.sched.logger.WarnContext(ctx, "failed to release lock", "job", j.name, "error", err)
			}
		}()
	}

	if j.opts.timeout > 0 {
		var tcancel context.CancelFunc
		taskCtx, tcancel = context.WithTimeout(taskCtx, j.opts.timeout)
		defer tcancel()
	}

	start := time.Now()
	err := j.job(taskCtx)
	d := time.Since(start)
	j.stats.recordRun(start, d, err)

	if err != nil {
		j.sched.logger.ErrorContext(ctx, "job failed", "job", j.name, "duration", d, "error", err)
	} else {
		j.sched.logger.DebugContext(ctx, "job completed", "job", j.name, "duration", d)
	}
	return err
}

// keepAlive 每 TTL/3 续期一次；续期失败时取消任务，避免与新持锁者并发执行。
func (j *scheduledJob) keepAlive(ctx context.Context, cancelTask context.CancelFunc, h LockHandle) (stop func()) {
	renewCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(max(j.opts.lockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := h.Extend(renewCtx); err != nil {
					if renewCtx.Err() != nil {
						return
					}
					j.sched.logger.ErrorContext(ctx, "lock renewal failed, canceling job",
						"job", j.name, "lock", h.Key(), "error", err)
					cancelTask()
					return
				}
			}
		}
	})
	return func() {
		cancel()
		wg.Wait()
	}
}

// cronLogger 把 cron 的内部日志接到 slog。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
