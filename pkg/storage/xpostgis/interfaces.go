package xpostgis

import (
	"context"
	"database/sql"
)

// rowScanner 是 *sql.Rows 的最小子集。
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// dbOperations 定义存储用到的数据库操作，dbAdapter 将 *sql.DB 适配为此接口。
type dbOperations interface {
	QueryContext(ctx context.Context, query string, args ...any) (rowScanner, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

type dbAdapter struct {
	db *sql.DB
}

func (a *dbAdapter) QueryContext(ctx context.Context, query string, args ...any) (rowScanner, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *dbAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, query, args...)
}

func (a *dbAdapter) PingContext(ctx context.Context) error {
	return a.db.PingContext(ctx)
}
