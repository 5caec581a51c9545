package storageopt

import (
	"sync/atomic"
	"time"
)

// =============================================================================
// 通用统计计数器
// =============================================================================

// HealthCounter 健康检查计数器。
type HealthCounter struct {
	pingCount  atomic.Int64
	pingErrors atomic.Int64
}

// IncPing 增加 ping 计数。
func (h *HealthCounter) IncPing() { h.pingCount.Add(1) }

// IncPingError 增加 ping 错误计数。
func (h *HealthCounter) IncPingError() { h.pingErrors.Add(1) }

// PingCount 返回 ping 计数。
func (h *HealthCounter) PingCount() int64 { return h.pingCount.Load() }

// PingErrors 返回 ping 错误计数。
func (h *HealthCounter) PingErrors() int64 { return h.pingErrors.Load() }

// QueryCounter 半径查询计数器。
type QueryCounter struct {
	queryCount  atomic.Int64
	queryErrors atomic.Int64
	slowQueries atomic.Int64
	rows        atomic.Int64
}

// IncQuery 记录一次查询及其返回行数。
func (q *QueryCounter) IncQuery(rows int) {
	q.queryCount.Add(1)
	q.rows.Add(int64(rows))
}

// IncQueryError 增加查询错误计数。
func (q *QueryCounter) IncQueryError() { q.queryErrors.Add(1) }

// IncSlowQuery 增加慢查询计数。
func (q *QueryCounter) IncSlowQuery() { q.slowQueries.Add(1) }

// Snapshot 返回计数快照。
func (q *QueryCounter) Snapshot() QueryStats {
	return QueryStats{
		Queries:     q.queryCount.Load(),
		Errors:      q.queryErrors.Load(),
		SlowQueries: q.slowQueries.Load(),
		Rows:        q.rows.Load(),
	}
}

// QueryStats 是 QueryCounter 的只读快照。
type QueryStats struct {
	Queries     int64
	Errors      int64
	SlowQueries int64
	Rows        int64
}

// MeasureOperation 测量操作耗时。
func MeasureOperation(start time.Time) time.Duration {
	return time.Since(start)
}
