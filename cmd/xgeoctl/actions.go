package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xgeocache"
	"github.com/omeyang/xgeo/pkg/geo/xwarm"
)

// ============================================================================
// query
// ============================================================================

func cmdQuery(ctx context.Context, st *stack, spec xgeo.QuerySpec, asJSON bool, out io.Writer) error {
	res, err := st.cache.Query(ctx, spec)
	if err != nil {
		if errors.Is(err, xgeo.ErrInvalidQuery) {
			return &usageError{msg: err.Error()}
		}
		return err
	}
	if asJSON {
		return writeJSON(out, newResultView(res))
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tDISTANCE (%s)\tKIND\tAGE\tSOURCE\n", res.Unit)
	for _, h := range res.Hits {
		age := h.Age.Truncate(time.Second).String()
		if h.Stale {
			age += " (stale)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			h.Entity.ID, strconv.FormatFloat(h.Distance, 'f', 3, 64), h.Entity.Kind, age, h.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	summary := fmt.Sprintf("%d result(s) from %s", res.Len(), res.Source)
	if res.Degraded {
		summary += ", degraded: primary store unavailable"
	}
	_, err = fmt.Fprintln(out, summary)
	return err
}

// ============================================================================
// warm
// ============================================================================

// cmdWarm 预热全部或指定区域。配置了集群锁时与 serve 的定时预热共用同一把锁。
func cmdWarm(ctx context.Context, st *stack, names []string, out io.Writer) (err error) {
	if len(st.warmer.Regions()) == 0 {
		return &usageError{msg: "no warm regions configured"}
	}
	for _, name := range names {
		if _, ok := st.warmer.Region(name); !ok {
			return &usageError{msg: fmt.Sprintf("%v: %s", xwarm.ErrUnknownRegion, name)}
		}
	}

	if st.cfg.Warm.Lock {
		locker, err := xwarm.NewRedisLocker([]redis.UniversalClient{st.redis})
		if err != nil {
			return err
		}
		handle, err := locker.TryLock(ctx, xwarm.WarmJobName, st.cfg.Warm.LockTTL)
		if err != nil {
			return err
		}
		if handle == nil {
			return xwarm.ErrLockNotAcquired
		}
		defer func() {
			if uerr := handle.Unlock(context.WithoutCancel(ctx)); uerr != nil && !errors.Is(uerr, xwarm.ErrNotLocked) {
				err = errors.Join(err, uerr)
			}
		}()
	}

	var reports []xwarm.Report
	if len(names) == 0 {
		reports, err = st.warmer.WarmAll(ctx)
	} else {
		var errs []error
		for _, name := range names {
			rep, werr := st.warmer.WarmByName(ctx, name)
			reports = append(reports, rep)
			errs = append(errs, werr)
		}
		err = errors.Join(errs...)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tENTITIES\tDURATION\tSTATUS")
	for _, rep := range reports {
		status := "ok"
		if rep.Err != nil {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", rep.Region, rep.Entities, rep.Duration.Round(time.Millisecond), status)
	}
	return errors.Join(err, tw.Flush())
}

// ============================================================================
// invalidate / prune
// ============================================================================

func cmdInvalidate(ctx context.Context, st *stack, ids []string, out io.Writer) error {
	for _, id := range ids {
		if err := st.cache.Invalidate(ctx, id); err != nil {
			return fmt.Errorf("invalidate %s: %w", id, err)
		}
		fmt.Fprintf(out, "invalidated %s\n", id)
	}
	return nil
}

func cmdPrune(ctx context.Context, st *stack, out io.Writer) error {
	p := st.pruner()
	if p == nil {
		return fmt.Errorf("index backend %s does not support prune", st.cfg.Index.Backend)
	}
	n, err := p.Prune(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "pruned %d expired entries\n", n)
	return err
}

// ============================================================================
// stats
// ============================================================================

// cacheStatsView 是 xgeocache.Stats 的发布格式。
type cacheStatsView struct {
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	Bypassed          uint64  `json:"bypassed"`
	Degraded          uint64  `json:"degraded"`
	HitRatio          float64 `json:"hit_ratio"`
	Populates         uint64  `json:"populates"`
	PopulateFailures  uint64  `json:"populate_failures"`
	PendingWriteBacks int64   `json:"pending_write_backs"`
	IndexErrors       uint64  `json:"index_errors"`
	PrimaryErrors     uint64  `json:"primary_errors"`
	DroppedErrors     uint64  `json:"dropped_errors"`
	AvgHitLatencyMs   float64 `json:"avg_hit_latency_ms"`
	AvgMissLatencyMs  float64 `json:"avg_miss_latency_ms"`
}

func newCacheStatsView(s xgeocache.Stats) cacheStatsView {
	return cacheStatsView{
		Hits:              s.Hits,
		Misses:            s.Misses,
		Bypassed:          s.Bypassed,
		Degraded:          s.Degraded,
		HitRatio:          s.HitRatio(),
		Populates:         s.Populates,
		PopulateFailures:  s.PopulateFailures,
		PendingWriteBacks: s.PendingWriteBacks,
		IndexErrors:       s.IndexErrors,
		PrimaryErrors:     s.PrimaryErrors,
		DroppedErrors:     s.DroppedErrors,
		AvgHitLatencyMs:   millis(s.AvgHitLatency),
		AvgMissLatencyMs:  millis(s.AvgMissLatency),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// statsSnapshot 是 serve 实例周期性发布到 redis 的快照。
type statsSnapshot struct {
	Instance string              `json:"instance"`
	At       time.Time           `json:"at"`
	Cache    cacheStatsView      `json:"cache"`
	Jobs     []xwarm.JobSnapshot `json:"jobs,omitempty"`
}

// statsKey 返回实例快照的 redis key。
func statsKey(prefix, instance string) string {
	return prefix + ":stats:" + instance
}

func cmdStats(ctx context.Context, st *stack, asJSON bool, out io.Writer) error {
	if st.redis == nil {
		return &usageError{msg: "stats requires a redis index or warm.lock (redis.addrs)"}
	}
	snaps, err := readStats(ctx, st.redis, st.cfg.Index.KeyPrefix)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, snaps)
	}
	if len(snaps) == 0 {
		_, err := fmt.Fprintln(out, "no published stats")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tAT\tHITS\tMISSES\tHIT RATIO\tDEGRADED\tPENDING\tPOPULATE FAILURES")
	for _, s := range snaps {
		c := s.Cache
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%d\t%d\t%d\n",
			s.Instance, s.At.Format(time.RFC3339), c.Hits, c.Misses, c.HitRatio,
			c.Degraded, c.PendingWriteBacks, c.PopulateFailures)
	}
	return tw.Flush()
}

// readStats 扫描全部实例的快照，按实例名排序。
func readStats(ctx context.Context, client redis.UniversalClient, prefix string) ([]statsSnapshot, error) {
	var keys []string
	iter := client.Scan(ctx, 0, statsKey(prefix, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan stats: %w", err)
	}

	snaps := make([]statsSnapshot, 0, len(keys))
	for _, key := range keys {
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		var s statsSnapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		snaps = append(snaps, s)
	}
	slices.SortFunc(snaps, func(a, b statsSnapshot) int {
		return cmp.Compare(a.Instance, b.Instance)
	})
	return snaps, nil
}

// publishStats 写入本实例快照，ttl 过后自动消失。
func publishStats(ctx context.Context, client redis.UniversalClient, prefix string, snap statsSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return client.Set(ctx, statsKey(prefix, snap.Instance), data, ttl).Err()
}
