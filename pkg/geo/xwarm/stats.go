package xwarm

import (
	"sync"
	"sync/atomic"
	"time"
)

// JobStats 是单个任务的执行统计，可并发读写。
type JobStats struct {
	Name string

	runs          atomic.Int64
	failures      atomic.Int64
	skips         atomic.Int64
	totalDuration atomic.Int64

	mu           sync.RWMutex
	lastRun      time.Time
	lastDuration time.Duration
	lastError    error
}

func (js *JobStats) recordRun(at time.Time, d time.Duration, err error) {
	js.runs.Add(1)
	js.totalDuration.Add(int64(d))
	if err != nil {
		js.failures.Add(1)
	}
	js.mu.Lock()
	js.lastRun = at
	js.lastDuration = d
	js.lastError = err
	js.mu.Unlock()
}

func (js *JobStats) recordSkip() { js.skips.Add(1) }

// Runs 返回执行次数（不含跳过）。
func (js *JobStats) Runs() int64 { return js.runs.Load() }

// Failures 返回失败次数。
func (js *JobStats) Failures() int64 { return js.failures.Load() }

// Skips 返回因未获得集群锁而跳过的次数。
func (js *JobStats) Skips() int64 { return js.skips.Load() }

// LastError 返回最近一次执行的错误。
func (js *JobStats) LastError() error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return js.lastError
}

// JobSnapshot 是 JobStats 的只读快照。
type JobSnapshot struct {
	Name         string        `json:"name"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skips        int64         `json:"skips"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	LastDuration time.Duration `json:"last_duration"`
	AvgDuration  time.Duration `json:"avg_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// Snapshot 返回快照。
func (js *JobStats) Snapshot() JobSnapshot {
	snap := JobSnapshot{
		Name:     js.Name,
		Runs:     js.runs.Load(),
		Failures: js.failures.Load(),
		Skips:    js.skips.Load(),
	}
	if snap.Runs > 0 {
		snap.AvgDuration = time.Duration(js.totalDuration.Load() / snap.Runs)
	}
	js.mu.RLock()
	snap.LastRun = js.lastRun
	snap.LastDuration = js.lastDuration
	if js.lastError != nil {
		snap.LastError = js.lastError.Error()
	}
	js.mu.RUnlock()
	return snap
}
