package xgeomongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xgeo/internal/storageopt"
	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
)

const mongoComponent = "xgeomongo"

// invalidQueryCodes 是调用方参数错误对应的服务端错误码：
// BadValue(2)、FailedToParse(9)、TypeMismatch(14)。
var invalidQueryCodes = []int{2, 9, 14}

// Stats 是存储的运行统计。
type Stats struct {
	storageopt.QueryStats
	PingCount  int64
	PingErrors int64
}

// Store 是基于 MongoDB 集合的 PrimaryStore，可并发使用。
type Store struct {
	coll     collectionOperations
	options  *Options
	detector *storageopt.SlowQueryDetector[SlowQueryInfo]

	queries storageopt.QueryCounter
	health  storageopt.HealthCounter
	closed  atomic.Bool
}

// New 使用集合创建存储。集合须已建立 2dsphere 索引，见 EnsureIndexes。
func New(coll *mongo.Collection, opts ...Option) (*Store, error) {
	if coll == nil {
		return nil, ErrNilCollection
	}
	return newStore(&collectionAdapter{coll: coll}, opts...)
}

func newStore(coll collectionOperations, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	detector, err := o.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("xgeomongo: %w", err)
	}
	return &Store{coll: coll, options: o, detector: detector}, nil
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

	ctx, span := s.startSpan(ctx, "radius_query",
		xmetrics.Float64(xmetrics.AttrRadiusMeters, q.RadiusMeters),
		xmetrics.Int(xmetrics.AttrLimit, q.Limit),
	)
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(xmetrics.AttrResults, len(entities))}})
	}()

	ctx, cancel := storageopt.ApplyTimeout(ctx, s.options.QueryTimeout)
	defer cancel()

	pipeline := buildPipeline(q)
	start := time.Now()
	entities, err = s.aggregate(ctx, pipeline)
	s.observe(ctx, "geoNear", pipeline, storageopt.MeasureOperation(start))
	if err != nil {
		s.queries.IncQueryError()
		return nil, err
	}
	s.queries.IncQuery(len(entities))
	return entities, nil
}

func (s *Store) aggregate(ctx context.Context, pipeline bson.A) ([]xgeo.Entity, error) {
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // 只读游标，关闭错误不影响结果

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	entities := make([]xgeo.Entity, 0, len(docs))
	for _, d := range docs {
		e, err := d.entity()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", xgeo.ErrPrimaryUnavailable, err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Upsert 写入或覆盖实体，updated_at 记为写入时间。
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

	ctx, span := s.startSpan(ctx, "upsert", xmetrics.Int("geo.entities", len(entities)))
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	now := s.options.Clock()
	models := make([]mongo.WriteModel, 0, len(entities))
	for _, e := range entities {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: fieldID, Value: e.ID}}).
			SetReplacement(toDocument(e, now)).
			SetUpsert(true))
	}

	start := time.Now()
	_, err = s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	s.observe(ctx, "upsert", len(models), storageopt.MeasureOperation(start))
	if err != nil {
		return classify(err)
	}
	return nil
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

	filter := bson.D{{Key: fieldID, Value: id}}
	start := time.Now()
	res, err := s.coll.DeleteOne(ctx, filter)
	s.observe(ctx, "delete", filter, storageopt.MeasureOperation(start))
	if err != nil {
		return false, classify(err)
	}
	return res.DeletedCount > 0, nil
}

// EnsureIndexes 创建 location 的 2dsphere 索引与每个声明属性的升序索引。可重复调用。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if s.closed.Load() {
		return ErrClosed
	}
	models := []mongo.IndexModel{{
		Keys:    bson.D{{Key: fieldLocation, Value: "2dsphere"}},
		Options: options.Index().SetName(fieldLocation + "_2dsphere"),
	}}
	for _, name := range s.options.Schema.Names() {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: attrPath(name), Value: 1}},
			Options: options.Index().SetName(fieldAttrs + "_" + name),
		})
	}
	if _, err := s.coll.CreateIndexes(ctx, models); err != nil {
		return classify(err)
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
	if err = s.coll.Ping(ctx); err != nil {
		s.health.IncPingError()
		return fmt.Errorf("xgeomongo health: %w", err)
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

// Close 停止慢查询钩子。集合所属客户端由调用方管理。重复调用返回 ErrClosed。
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
		Component: mongoComponent,
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs: append([]xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
			xmetrics.String("db.name", s.coll.DatabaseName()),
			xmetrics.String("db.collection", s.coll.Name()),
		}, attrs...),
	})
}

func (s *Store) observe(ctx context.Context, op string, pipeline any, d time.Duration) {
	info := SlowQueryInfo{
		Database:   s.coll.DatabaseName(),
		Collection: s.coll.Name(),
		Operation:  op,
		Pipeline:   pipeline,
		Duration:   d,
	}
	if s.detector.MaybeSlowQuery(ctx, info, d) {
		s.queries.IncSlowQuery()
	}
}

// classify 将驱动错误映射到 xgeo 错误分类。
func classify(err error) error {
	return storageopt.WrapPrimary(mongoComponent, err, isInvalidQuery(err))
}

func isInvalidQuery(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	for _, code := range invalidQueryCodes {
		if se.HasErrorCode(code) {
			return true
		}
	}
	return false
}

var (
	_ xgeo.PrimaryStore   = (*Store)(nil)
	_ xgeo.SchemaProvider = (*Store)(nil)
)
