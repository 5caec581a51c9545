package xpostgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// fakeDB 是 dbOperations 的内存实现，记录语句与参数并返回预设结果。
type fakeDB struct {
	mu sync.Mutex

	rows     [][]any
	queryErr error
	rowsErr  error
	queries  []call

	execErr  error
	affected int64
	execs    []call

	pingErr error
}

type call struct {
	stmt string
	args []any
}

func (f *fakeDB) QueryContext(_ context.Context, stmt string, args ...any) (rowScanner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, call{stmt: stmt, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{rows: f.rows, err: f.rowsErr, pos: -1}, nil
}

func (f *fakeDB) ExecContext(_ context.Context, stmt string, args ...any) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, call{stmt: stmt, args: args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult(f.affected), nil
}

func (f *fakeDB) PingContext(context.Context) error { return f.pingErr }

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

// fakeRows 按列顺序把预设值赋给 Scan 目标。
type fakeRows struct {
	rows   [][]any
	err    error
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	src := r.rows[r.pos]
	if len(src) != len(dest) {
		return fmt.Errorf("fakeRows: %d columns, %d destinations", len(src), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		sv := reflect.ValueOf(src[i])
		if !sv.Type().AssignableTo(dv.Type()) {
			return fmt.Errorf("fakeRows: column %d: cannot assign %s to %s", i, sv.Type(), dv.Type())
		}
		dv.Set(sv)
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}
