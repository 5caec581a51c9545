package xgeomem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

type indexEntry struct {
	entity    xgeo.Entity
	expiresAt time.Time
}

// Index 是进程内 FastIndex，可并发使用。
type Index struct {
	mu       sync.RWMutex
	entries  *simplelru.LRU[string, *indexEntry]
	postings map[string]map[string]struct{}
	eqAttrs  map[string]struct{}
	schema   *xgeo.Schema
	now      func() time.Time
}

// NewIndex 创建进程内索引。
func NewIndex(opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, o.capacity)
	}

	idx := &Index{
		postings: make(map[string]map[string]struct{}),
		eqAttrs:  make(map[string]struct{}),
		schema:   o.schema,
		now:      o.clock,
	}
	for _, name := range o.schema.EqualityAttrs() {
		idx.eqAttrs[name] = struct{}{}
	}

	// 淘汰回调在 Add/Remove 内同步执行，此时调用方已持有写锁
	lru, err := simplelru.NewLRU[string, *indexEntry](o.capacity, func(_ string, e *indexEntry) {
		idx.unindex(e.entity)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}
	idx.entries = lru
	return idx, nil
}

// Schema 返回构建索引时声明的属性。
func (i *Index) Schema() *xgeo.Schema { return i.schema }

// Len 返回条目数（含已过期未清理的条目）。
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.entries.Len()
}

// RadiusQuery 实现 xgeo.FastIndex。纯读，不改变 LRU 顺序。
func (i *Index) RadiusQuery(ctx context.Context, q xgeo.RadiusQuery) ([]xgeo.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.schema.Validate(q.Filters); err != nil {
		return nil, err
	}

	now := i.now()
	c := newCollector(q)

	i.mu.RLock()
	defer i.mu.RUnlock()

	visit := func(e *indexEntry) {
		if now.Before(e.expiresAt) {
			c.offer(e.entity)
		}
	}

	if ids, ok := i.smallestPosting(q.Filters); ok {
		for id := range ids {
			if e, found := i.entries.Peek(id); found {
				visit(e)
			}
		}
	} else {
		for _, e := range i.entries.Values() {
			visit(e)
		}
	}
	return c.result(), nil
}

// Populate 实现 xgeo.FastIndex：LastRefreshed 设为当前时间，过期时间为 now+ttl。
func (i *Index) Populate(ctx context.Context, entities []xgeo.Entity, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTTL, ttl)
	}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := i.now()
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, e := range entities {
		if old, ok := i.entries.Peek(e.ID); ok {
			i.unindex(old.entity)
		}
		stored := e.Clone()
		stored.LastRefreshed = now
		i.entries.Add(e.ID, &indexEntry{entity: stored, expiresAt: now.Add(ttl)})
		i.index(stored)
	}
	return nil
}

// Invalidate 实现 xgeo.FastIndex。
func (i *Index) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return xgeo.ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries.Remove(id)
	return nil
}

// Prune 删除已过期的条目，返回删除数量。
func (i *Index) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := i.now()
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for _, id := range i.entries.Keys() {
		if e, ok := i.entries.Peek(id); ok && !now.Before(e.expiresAt) {
			i.entries.Remove(id)
			removed++
		}
	}
	return removed, nil
}

// smallestPosting 返回等值过滤条件中最小的倒排集合。
// 没有可用倒排的等值条件时返回 false，调用方应全量扫描。
func (i *Index) smallestPosting(filters []xgeo.Filter) (map[string]struct{}, bool) {
	var best map[string]struct{}
	found := false
	for _, f := range filters {
		if f.Op != xgeo.OpEquals {
			continue
		}
		if _, ok := i.eqAttrs[f.Attr]; !ok {
			continue
		}
		ids := i.postings[postingKey(f.Attr, f.Value)]
		if !found || len(ids) < len(best) {
			best, found = ids, true
		}
	}
	return best, found
}

func (i *Index) index(e xgeo.Entity) {
	for name := range i.eqAttrs {
		v, ok := e.Attrs[name]
		if !ok {
			continue
		}
		key := postingKey(name, v)
		ids := i.postings[key]
		if ids == nil {
			ids = make(map[string]struct{})
			i.postings[key] = ids
		}
		ids[e.ID] = struct{}{}
	}
}

func (i *Index) unindex(e xgeo.Entity) {
	for name := range i.eqAttrs {
		v, ok := e.Attrs[name]
		if !ok {
			continue
		}
		key := postingKey(name, v)
		if ids := i.postings[key]; ids != nil {
			delete(ids, e.ID)
			if len(ids) == 0 {
				delete(i.postings, key)
			}
		}
	}
}

func postingKey(attr string, v xgeo.Value) string {
	return attr + "\x00" + v.Kind().String() + "\x00" + v.String()
}

var (
	_ xgeo.FastIndex      = (*Index)(nil)
	_ xgeo.Pruner         = (*Index)(nil)
	_ xgeo.SchemaProvider = (*Index)(nil)
)
