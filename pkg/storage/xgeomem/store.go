package xgeomem

import (
	"context"
	"sync"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// Store 是进程内 PrimaryStore，可并发使用。
type Store struct {
	mu       sync.RWMutex
	entities map[string]xgeo.Entity
	schema   *xgeo.Schema
	now      func() time.Time
}

// NewStore 创建空的进程内存储。
func NewStore(opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Store{
		entities: make(map[string]xgeo.Entity),
		schema:   o.schema,
		now:      o.clock,
	}
}

// Schema 返回属性声明。
func (s *Store) Schema() *xgeo.Schema { return s.schema }

// Upsert 写入或覆盖实体；LastRefreshed 记为写入时间（等价于 updated_at）。
func (s *Store) Upsert(entities ...xgeo.Entity) error {
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		stored := e.Clone()
		stored.LastRefreshed = now
		s.entities[e.ID] = stored
	}
	return nil
}

// Delete 删除实体，返回是否存在。
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entities[id]
	delete(s.entities, id)
	return ok
}

// Get 按 ID 读取实体。
func (s *Store) Get(id string) (xgeo.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e.Clone(), ok
}

// Len 返回实体数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// RadiusQuery 实现 xgeo.PrimaryStore。
func (s *Store) RadiusQuery(ctx context.Context, q xgeo.RadiusQuery) ([]xgeo.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(q.Filters); err != nil {
		return nil, err
	}

	c := newCollector(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		c.offer(e)
	}
	return c.result(), nil
}

var (
	_ xgeo.PrimaryStore   = (*Store)(nil)
	_ xgeo.SchemaProvider = (*Store)(nil)
)
