package xpostgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/omeyang/xgeo/internal/storageopt"
	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

const postgisComponent = "xpostgis"

// Stats 是存储的运行统计。
type Stats struct {
	storageopt.QueryStats
	PingCount  int64
	PingErrors int64
}

// Store 是基于 PostGIS 表的 PrimaryStore，可并发使用。
type Store struct {
	db       dbOperations
	options  *Options
	detector *storageopt.SlowQueryDetector[SlowQueryInfo]

	queries storageopt.QueryCounter
	health  storageopt.HealthCounter
	closed  atomic.Bool
}

// New 使用已打开的连接池创建存储。连接池由调用方管理。
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return newStore(&dbAdapter{db: db}, opts...)
}

func newStore(db dbOperations, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Table == "" {
		return nil, ErrInvalidTable
	}
	detector, err := o.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("xpostgis: %w", err)
	}
	return &Store{db: db, options: o, detector: detector}, nil
}

// Schema 返回属性声明。
func (s *Store) Schema() *xgeo.Schema { return s.options.Schema }

// RadiusQuery 实现 xgeo.PrimaryStore。
func (s *Store) RadiusQuery(ctx context.Context, q xgeo.RadiusQuery) (entities []xgeo.Entity, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: %w", xgeo.ErrPrimaryUnavailable, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.options.Schema.Validate(q.Filters); err != nil {
		return nil, err
	}
	stmt, args, err := buildRadiusQuery(s.options.Table, q)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "radius_query",
		xmetrics.Float64(xmetrics.AttrRadiusMeters, q.RadiusMeters),
		xmetrics.Int(xmetrics.AttrLimit, q.Limit),
	)
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(xmetrics.AttrResults, len(entities))}})
	}()

	ctx, cancel := storageopt.ApplyTimeout(ctx, s.options.QueryTimeout)
	defer cancel()

	start := time.Now()
	entities, err = s.query(ctx, stmt, args)
	s.observe(ctx, "radius_query", stmt, storageopt.MeasureOperation(start))
	if err != nil {
		s.queries.IncQueryError()
		return nil, err
	}
	s.queries.IncQuery(len(entities))
	return entities, nil
}

func (s *Store) query(ctx context.Context, stmt string, args []any) ([]xgeo.Entity, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close() //nolint:errcheck // 只读结果集，关闭错误不影响结果

	var entities []xgeo.Entity
	for rows.Next() {
		var r row
		if err := r.scan(rows); err != nil {
			return nil, classify(err)
		}
		e, err := r.entity()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", xgeo.ErrPrimaryUnavailable, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return entities, nil
}

// Upsert 写入或覆盖实体，updated_at 记为写入时间。同一批次中重复的 ID 以最后一个为准。
func (s *Store) Upsert(ctx context.Context, entities ...xgeo.Entity) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if s.closed.Load() {
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
	rows, err := s.rowsOf(entities)
	if err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "upsert", xmetrics.Int("geo.entities", len(rows)))
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	for start := 0; start < len(rows); start += maxUpsertRows {
		chunk := rows[start:min(start+maxUpsertRows, len(rows))]
		stmt := buildUpsert(s.options.Table, chunk)
		args := make([]any, 0, len(chunk)*7)
		for _, r := range chunk {
			args = append(args, r.args()...)
		}
		begin := time.Now()
		_, err = s.db.ExecContext(ctx, stmt, args...)
		s.observe(ctx, "upsert", stmt, storageopt.MeasureOperation(begin))
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

// rowsOf 编码实体并按 ID 去重，保留首次出现的位置与最后一次的内容。
func (s *Store) rowsOf(entities []xgeo.Entity) ([]row, error) {
	now := s.options.Clock()
	pos := make(map[string]int, len(entities))
	rows := make([]row, 0, len(entities))
	for _, e := range entities {
		r, err := toRow(e, now)
		if err != nil {
			return nil, err
		}
		if i, ok := pos[e.ID]; ok {
			rows[i] = r
			continue
		}
		pos[e.ID] = len(rows)
		rows = append(rows, r)
	}
	return rows, nil
}

// Delete 删除实体，返回是否存在。
func (s *Store) Delete(ctx context.Context, id string) (deleted bool, err error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	if s.closed.Load() {
		return false, ErrClosed
	}
	if id == "" {
		return false, xgeo.ErrEmptyID
	}

	ctx, span := s.startSpan(ctx, "delete")
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	stmt := buildDelete(s.options.Table)
	start := time.Now()
	res, err := s.db.ExecContext(ctx, stmt, id)
	s.observe(ctx, "delete", stmt, storageopt.MeasureOperation(start))
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

// EnsureSchema 创建 PostGIS 扩展、表、GiST 索引与每个声明属性的表达式索引。可重复调用。
func (s *Store) EnsureSchema(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if s.closed.Load() {
		return ErrClosed
	}
	for _, stmt := range schemaStatements(s.options.Table, s.options.Schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("xpostgis: ensure schema: %w", classify(err))
		}
	}
	return nil
}

// Health 执行健康检查。
func (s *Store) Health(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if s.closed.Load() {
		return ErrClosed
	}
	ctx, span := s.startSpan(ctx, "health")
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	s.health.IncPing()
	ctx, cancel := storageopt.HealthContext(ctx, s.options.HealthTimeout)
	defer cancel()
	if err = s.db.PingContext(ctx); err != nil {
		s.health.IncPingError()
		return fmt.Errorf("xpostgis health: %w", err)
	}
	return nil
}

// Stats 返回统计信息。
func (s *Store) Stats() Stats {
	return Stats{
		QueryStats: s.queries.Snapshot(),
		PingCount:  s.health.PingCount(),
		PingErrors: s.health.PingErrors(),
	}
}

// Close 停止慢查询钩子。重复调用返回 ErrClosed。
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.detector.Close()
	return nil
}

// =============================================================================
// 内部实现
// =============================================================================

func (s *Store) startSpan(ctx context.Context, op string, attrs ...xmetrics.Attr) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, s.options.Observer, xmetrics.SpanOptions{
		Component: postgisComponent,
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs: append([]xmetrics.Attr{
			xmetrics.String("db.system", "postgresql"),
			xmetrics.String("db.sql.table", s.options.Table),
		}, attrs...),
	})
}

func (s *Store) observe(ctx context.Context, op, stmt string, d time.Duration) {
	info := SlowQueryInfo{Table: s.options.Table, Operation: op, Statement: stmt, Duration: d}
	if s.detector.MaybeSlowQuery(ctx, info, d) {
		s.queries.IncSlowQuery()
	}
}

// deploymentCodes 属于 42 类但源于部署问题的 SQLSTATE。
var deploymentCodes = map[pq.ErrorCode]bool{
	"42P01": true, // undefined_table
	"42883": true, // undefined_function
}

// classify 将驱动错误映射到 xgeo 错误分类。
func classify(err error) error {
	return storageopt.WrapPrimary(postgisComponent, err, isInvalidQuery(err))
}

func isInvalidQuery(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "22":
		return true
	case "42":
		return !deploymentCodes[pqErr.Code]
	default:
		return false
	}
}

var (
	_ xgeo.PrimaryStore   = (*Store)(nil)
	_ xgeo.SchemaProvider = (*Store)(nil)
)
