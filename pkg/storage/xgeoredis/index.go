package xgeoredis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// maxGeoLatitude 是 Redis GEO 可编码的纬度上限（Web Mercator 边界）。
const maxGeoLatitude = 85.05112878

// maxLoggedSkips 是单条跳过日志中列出的 ID 数上限。
const maxLoggedSkips = 10

// Index 是 Redis GEO 上的 FastIndex。可并发使用，并发安全由 Redis 保证。
type Index struct {
	client     redis.UniversalClient
	keys       keyspace
	schema     *xgeo.Schema
	eqAttrs    []string
	overfetch  int
	pruneBatch int
	now        func() time.Time
	logger     *slog.Logger
	skipped    atomic.Uint64
}

// New 创建 Redis FastIndex。client 的生命周期由调用方管理。
func New(client redis.UniversalClient, opts ...Option) (*Index, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Index{
		client:     client,
		keys:       keyspace{prefix: o.prefix},
		schema:     o.schema,
		eqAttrs:    o.schema.EqualityAttrs(),
		overfetch:  o.overfetch,
		pruneBatch: o.pruneBatch,
		now:        o.clock,
		logger:     o.logger,
	}, nil
}

// Client 返回底层客户端。
func (i *Index) Client() redis.UniversalClient { return i.client }

// Schema 返回属性声明。
func (i *Index) Schema() *xgeo.Schema { return i.schema }

// SkippedEntities 返回因纬度超出 Redis GEO 范围而未写入的实体累计数。
func (i *Index) SkippedEntities() uint64 { return i.skipped.Load() }

// Size 返回 GEO 集合中的成员数（含已过期未清理的成员）。
func (i *Index) Size(ctx context.Context) (int64, error) {
	n, err := i.client.ZCard(ctx, i.keys.geo()).Result()
	return n, wrapErr(err)
}

// =============================================================================
// RadiusQuery
// =============================================================================

// RadiusQuery 实现 xgeo.FastIndex。
func (i *Index) RadiusQuery(ctx context.Context, q xgeo.RadiusQuery) ([]xgeo.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.schema.Validate(q.Filters); err != nil {
		return nil, err
	}

	allowed, err := i.candidates(ctx, q.Filters)
	if err != nil {
		return nil, err
	}
	if allowed != nil && len(allowed) == 0 {
		return []xgeo.Entity{}, nil
	}

	// 有过滤条件时命中率不可预估，直接取半径内全部成员
	count := 0
	if q.Limit > 0 && len(q.Filters) == 0 && i.overfetch > 0 {
		count = q.Limit * i.overfetch
	}
	out, truncated, err := i.search(ctx, q, allowed, count)
	if err == nil && truncated && len(out) < q.Limit {
		out, _, err = i.search(ctx, q, allowed, 0)
	}
	return out, err
}

// candidates 对等值过滤条件求倒排集合交集。没有可用倒排时返回 nil。
func (i *Index) candidates(ctx context.Context, filters []xgeo.Filter) (map[string]struct{}, error) {
	var keys []string
	for _, f := range filters {
		if f.Op == xgeo.OpEquals && slices.Contains(i.eqAttrs, f.Attr) {
			keys = append(keys, i.keys.attr(f.Attr, f.Value))
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ids, err := i.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// search 执行一次 GEORADIUS_RO，truncated 表示结果可能被 COUNT 截断。
func (i *Index) search(ctx context.Context, q xgeo.RadiusQuery, allowed map[string]struct{}, count int) ([]xgeo.Entity, bool, error) {
	locs, err := i.client.GeoRadius(ctx, i.keys.geo(), q.Center.Lon(), q.Center.Lat(), &redis.GeoRadiusQuery{
		Radius:   q.RadiusMeters,
		Unit:     "m",
		WithDist: true,
		Sort:     "ASC",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, false, wrapErr(err)
	}
	truncated := count > 0 && len(locs) == count

	ids := make([]string, 0, len(locs))
	for _, loc := range locs {
		if allowed != nil {
			if _, ok := allowed[loc.Name]; !ok {
				continue
			}
		}
		ids = append(ids, loc.Name)
	}

	entities, err := i.load(ctx, ids)
	if err != nil {
		return nil, false, err
	}

	out := make([]xgeo.Entity, 0, len(entities))
	for _, e := range entities {
		if !xgeo.MatchAll(q.Filters, e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, truncated, nil
}

// load 按 ids 顺序读取实体，跳过已过期（JSON 不存在）的成员。
func (i *Index) load(ctx context.Context, ids []string) ([]xgeo.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for j, id := range ids {
		keys[j] = i.keys.entity(id)
	}
	vals, err := i.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr(err)
	}

	entities := make([]xgeo.Entity, 0, len(vals))
	for j, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		e, err := decodeEntity([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", xgeo.ErrIndexUnavailable, ids[j], err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// =============================================================================
// Populate / Invalidate / Prune
// =============================================================================

// Populate 实现 xgeo.FastIndex。同一批次中重复的 ID 以最后一个为准。
//
// Redis GEO 只能编码 |lat| <= 85.05112878 的坐标，超出范围的实体不写入也不返回错误：
// 每批跳过的数量与 ID 以 Warn 级别记录，累计数见 SkippedEntities。
// 这些实体附近的查询总是未命中，由 PrimaryStore 回答。
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

	batch, skipped := i.indexable(entities)
	if len(skipped) > 0 {
		i.skipped.Add(uint64(len(skipped)))
		i.logger.WarnContext(ctx, "xgeoredis: entities outside redis geo latitude range skipped",
			"skipped", len(skipped), "ids", skipped[:min(len(skipped), maxLoggedSkips)],
			"max_latitude", maxGeoLatitude)
	}
	if len(batch) == 0 {
		return nil
	}

	now := i.now()
	type write struct {
		entity   xgeo.Entity
		data     []byte
		attrKeys []string
	}
	writes := make([]write, len(batch))
	ids := make([]string, len(batch))
	for j, e := range batch {
		e.LastRefreshed = now
		data, err := encodeEntity(e)
		if err != nil {
			return fmt.Errorf("xgeoredis: encode %s: %w", e.ID, err)
		}
		writes[j] = write{entity: e, data: data, attrKeys: i.attrKeys(e)}
		ids[j] = e.ID
	}

	previous, err := i.memberships(ctx, ids)
	if err != nil {
		return err
	}

	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for j, w := range writes {
			id := w.entity.ID
			for _, k := range previous[j] {
				if !slices.Contains(w.attrKeys, k) {
					pipe.SRem(ctx, k, id)
				}
			}
			pipe.GeoAdd(ctx, i.keys.geo(), &redis.GeoLocation{
				Name:      id,
				Longitude: w.entity.Key.Lon(),
				Latitude:  w.entity.Key.Lat(),
			})
			pipe.Set(ctx, i.keys.entity(id), w.data, ttl)
			pipe.Del(ctx, i.keys.members(id))
			for _, k := range w.attrKeys {
				pipe.SAdd(ctx, k, id)
			}
			if len(w.attrKeys) > 0 {
				pipe.SAdd(ctx, i.keys.members(id), toArgs(w.attrKeys)...)
			}
		}
		return nil
	})
	return wrapErr(err)
}

// Invalidate 实现 xgeo.FastIndex。
func (i *Index) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return xgeo.ErrEmptyID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return i.remove(ctx, []string{id})
}

// Prune 删除 JSON 已过期的 GEO 成员及其倒排成员，返回删除数量。
func (i *Index) Prune(ctx context.Context) (int, error) {
	removed := 0
	var cursor uint64
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		pairs, next, err := i.client.ZScan(ctx, i.keys.geo(), cursor, "", int64(i.pruneBatch)).Result()
		if err != nil {
			return removed, wrapErr(err)
		}

		members := make([]string, 0, len(pairs)/2)
		for j := 0; j < len(pairs); j += 2 {
			members = append(members, pairs[j])
		}
		expired, err := i.expired(ctx, members)
		if err != nil {
			return removed, err
		}
		if len(expired) > 0 {
			if err := i.remove(ctx, expired); err != nil {
				return removed, err
			}
			removed += len(expired)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// expired 返回 JSON 已不存在的成员。
func (i *Index) expired(ctx context.Context, members []string) ([]string, error) {
	if len(members) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(members))
	_, err := i.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for j, id := range members {
			cmds[j] = pipe.Exists(ctx, i.keys.entity(id))
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	var out []string
	for j, cmd := range cmds {
		if cmd.Val() == 0 {
			out = append(out, members[j])
		}
	}
	return out, nil
}

func (i *Index) remove(ctx context.Context, ids []string) error {
	previous, err := i.memberships(ctx, ids)
	if err != nil {
		return err
	}
	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, i.keys.geo(), toArgs(ids)...)
		for j, id := range ids {
			for _, k := range previous[j] {
				pipe.SRem(ctx, k, id)
			}
			pipe.Del(ctx, i.keys.entity(id), i.keys.members(id))
		}
		return nil
	})
	return wrapErr(err)
}

// memberships 读取每个 ID 当前所在的倒排集合，结果与 ids 一一对应。
func (i *Index) memberships(ctx context.Context, ids []string) ([][]string, error) {
	out := make([][]string, len(ids))
	if len(i.eqAttrs) == 0 {
		return out, nil
	}
	cmds := make([]*redis.StringSliceCmd, len(ids))
	_, err := i.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for j, id := range ids {
			cmds[j] = pipe.SMembers(ctx, i.keys.members(id))
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	for j, cmd := range cmds {
		out[j] = cmd.Val()
	}
	return out, nil
}

func (i *Index) attrKeys(e xgeo.Entity) []string {
	var keys []string
	for _, name := range i.eqAttrs {
		if v, ok := e.Attrs[name]; ok {
			keys = append(keys, i.keys.attr(name, v))
		}
	}
	return keys
}

// indexable 去重（保留最后一个）并过滤掉 Redis GEO 无法编码的实体，返回被过滤的 ID。
// 最后一个版本越界的 ID 整体跳过，不写入它之前的坐标。
func (i *Index) indexable(entities []xgeo.Entity) (out []xgeo.Entity, skipped []string) {
	last := make(map[string]int, len(entities))
	for j, e := range entities {
		last[e.ID] = j
	}
	out = make([]xgeo.Entity, 0, len(last))
	for j, e := range entities {
		if last[e.ID] != j {
			continue
		}
		if e.Key.Lat() > maxGeoLatitude || e.Key.Lat() < -maxGeoLatitude {
			skipped = append(skipped, e.ID)
			continue
		}
		out = append(out, e)
	}
	return out, skipped
}

func toArgs(ss []string) []any {
	args := make([]any, len(ss))
	for j, s := range ss {
		args[j] = s
	}
	return args
}

func wrapErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", xgeo.ErrIndexUnavailable, err)
}

var (
	_ xgeo.FastIndex      = (*Index)(nil)
	_ xgeo.Pruner         = (*Index)(nil)
	_ xgeo.SchemaProvider = (*Index)(nil)
)
