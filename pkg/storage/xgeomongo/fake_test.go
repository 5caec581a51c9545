package xgeomongo

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// fakeCollection 是 collectionOperations 的内存实现，记录每次调用的参数。
type fakeCollection struct {
	mu sync.Mutex

	docs      []any
	aggErr    error
	pipelines []any

	bulkErr error
	writes  [][]mongo.WriteModel

	deleteCount int64
	deleteErr   error
	deletes     []any

	indexErr error
	indexes  []mongo.IndexModel

	pingErr error
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline any, _ ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipelines = append(f.pipelines, pipeline)
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func (f *fakeCollection) BulkWrite(_ context.Context, models []mongo.WriteModel, _ ...options.Lister[options.BulkWriteOptions]) (*mongo.BulkWriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, models)
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	return &mongo.BulkWriteResult{UpsertedCount: int64(len(models))}, nil
}

func (f *fakeCollection) DeleteOne(_ context.Context, filter any, _ ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, filter)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &mongo.DeleteResult{DeletedCount: f.deleteCount}, nil
}

func (f *fakeCollection) CreateIndexes(_ context.Context, models []mongo.IndexModel) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	f.indexes = append(f.indexes, models...)
	names := make([]string, len(models))
	for i := range models {
		names[i] = "idx"
	}
	return names, nil
}

func (f *fakeCollection) Ping(context.Context) error { return f.pingErr }

func (f *fakeCollection) DatabaseName() string { return "geo" }

func (f *fakeCollection) Name() string { return "places" }

func (f *fakeCollection) aggregateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pipelines)
}
