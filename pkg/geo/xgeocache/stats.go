package xgeocache

import (
	"sync/atomic"
	"time"
)

// Stats 是协调器统计信息的只读快照。
// 计数器在进程生命周期内单调不减。
type Stats struct {
	// Hits 是由 FastIndex 新鲜结果直接回答的查询数。
	Hits uint64
	// Misses 是需要查询 PrimaryStore 的查询数（不含 BypassCache）。
	Misses uint64
	// Bypassed 是显式跳过缓存的查询数。
	Bypassed uint64
	// Degraded 是 PrimaryStore 失败后以缓存数据降级返回的查询数。
	Degraded uint64

	// Populates 是成功完成的写入次数（异步回写与同步预热）。
	Populates uint64
	// PopulateFailures 是失败或被拒绝的写入次数。
	PopulateFailures uint64
	// PendingWriteBacks 是已提交但尚未完成的回写数。
	PendingWriteBacks int64

	// IndexErrors 是 FastIndex 探测失败次数（按未命中处理）。
	IndexErrors uint64
	// PrimaryErrors 是 PrimaryStore 查询失败次数。
	PrimaryErrors uint64
	// DroppedErrors 是因错误通道已满或已关闭而未投递的回写错误数。
	DroppedErrors uint64

	// AvgHitLatency 是命中查询的平均耗时。
	AvgHitLatency time.Duration
	// AvgMissLatency 是未命中查询（含回源）的平均耗时。
	AvgMissLatency time.Duration
}

// HitRatio 返回命中率；没有查询时返回 0。
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// statsCollector 使用原子计数，可被任意数量的查询并发更新。
type statsCollector struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	bypassed atomic.Uint64
	degraded atomic.Uint64

	populates        atomic.Uint64
	populateFailures atomic.Uint64
	pending          atomic.Int64

	indexErrors   atomic.Uint64
	primaryErrors atomic.Uint64
	droppedErrors atomic.Uint64

	hitNanos      atomic.Int64
	missNanos     atomic.Int64
	missLatencies atomic.Uint64
}

func (s *statsCollector) recordHit(d time.Duration) {
	s.hits.Add(1)
	s.hitNanos.Add(int64(d))
}

func (s *statsCollector) recordMissLatency(d time.Duration) {
	s.missLatencies.Add(1)
	s.missNanos.Add(int64(d))
}

func (s *statsCollector) snapshot() Stats {
	st := Stats{
		Hits:              s.hits.Load(),
		Misses:            s.misses.Load(),
		Bypassed:          s.bypassed.Load(),
		Degraded:          s.degraded.Load(),
		Populates:         s.populates.Load(),
		PopulateFailures:  s.populateFailures.Load(),
		PendingWriteBacks: s.pending.Load(),
		IndexErrors:       s.indexErrors.Load(),
		PrimaryErrors:     s.primaryErrors.Load(),
		DroppedErrors:     s.droppedErrors.Load(),
	}
	st.AvgHitLatency = average(s.hitNanos.Load(), st.Hits)
	st.AvgMissLatency = average(s.missNanos.Load(), s.missLatencies.Load())
	return st
}

func average(sumNanos int64, n uint64) time.Duration {
	if n == 0 {
		return 0
	}
	return time.Duration(sumNanos / int64(n))
}
