package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xgeo/pkg/config/xconf"
	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xgeocache"
	"github.com/omeyang/xgeo/pkg/geo/xstale"
	"github.com/omeyang/xgeo/pkg/geo/xwarm"
	"github.com/omeyang/xgeo/pkg/observability/xlog"
	"github.com/omeyang/xgeo/pkg/observability/xmetrics"
	"github.com/omeyang/xgeo/pkg/storage/xgeomem"
	"github.com/omeyang/xgeo/pkg/storage/xgeomongo"
	"github.com/omeyang/xgeo/pkg/storage/xgeoredis"
	"github.com/omeyang/xgeo/pkg/storage/xguard"
	"github.com/omeyang/xgeo/pkg/storage/xpostgis"
)

// stack 是由配置组装出的一组组件。
type stack struct {
	cfg    *xconf.Config
	logger *slog.Logger

	redis   redis.UniversalClient // 未使用 redis 时为 nil
	index   xgeo.FastIndex
	primary xgeo.PrimaryStore
	cache   *xgeocache.Coordinator
	// maxAge 非 nil 时支持热更新最大年龄。
	maxAge *xstale.MaxAge
	warmer *xwarm.Warmer

	closers []func() error
}

// loadConfig 加载配置文件，路径为空时使用默认配置。
func loadConfig(path string) (*xconf.Config, error) {
	if path == "" {
		cfg := xconf.Default()
		return cfg, cfg.Validate()
	}
	return xconf.Load(path)
}

// newLogger 按配置构建日志；levelOverride 非空时覆盖配置级别。
func newLogger(cfg *xconf.Config, levelOverride string, errOut io.Writer) (*xlog.Logger, func() error, error) {
	level := cfg.Log.Level
	if levelOverride != "" {
		level = levelOverride
	}
	b := xlog.New().
		SetOutput(errOut).
		SetLevelString(level).
		SetFormat(cfg.Log.Format).
		SetRotation(xlog.Rotation{
			Filename:   cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		})
	if cfg.Serve.Instance != "" {
		b.SetAttrs(slog.String("instance", cfg.Serve.Instance))
	}
	return b.Build()
}

// newStack 组装索引、主存储、协调器与预热器。失败时释放已创建的资源。
func newStack(ctx context.Context, cfg *xconf.Config, logger *slog.Logger) (*stack, error) {
	st := &stack{cfg: cfg, logger: logger}
	if err := st.build(ctx); err != nil {
		return nil, joinClose(err, st.Close)
	}
	return st, nil
}

func (st *stack) build(ctx context.Context) error {
	cfg, logger := st.cfg, st.logger

	schema, err := cfg.SchemaOf()
	if err != nil {
		return err
	}
	observer, err := xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("github.com/omeyang/xgeo"))
	if err != nil {
		return err
	}

	if cfg.Index.Backend == xconf.BackendRedis || cfg.Warm.Lock {
		st.redis = newRedisClient(cfg.Redis)
		st.closers = append(st.closers, st.redis.Close)
		if err := st.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	if st.index, err = newIndex(cfg, schema, st.redis, logger); err != nil {
		return err
	}
	if st.primary, err = st.newPrimary(ctx, schema, observer); err != nil {
		return err
	}

	policy := st.stalenessPolicy()
	st.cache, err = xgeocache.New(st.index, st.primary,
		xgeocache.WithConfig(cfg.Cache.Config),
		xgeocache.WithStalenessPolicy(policy),
		xgeocache.WithSchema(schema),
		xgeocache.WithLogger(logger),
		xgeocache.WithObserver(observer),
	)
	if err != nil {
		return err
	}
	st.closers = append(st.closers, st.cache.Close)

	regions, err := cfg.Warm.RegionsOf(schema)
	if err != nil {
		return err
	}
	st.warmer, err = xwarm.NewWarmer(st.primary, st.cache,
		xwarm.WithRegions(regions...),
		xwarm.WithBatchSize(cfg.Warm.BatchSize),
		xwarm.WithConcurrency(cfg.Warm.Concurrency),
		xwarm.WithLogger(logger),
		xwarm.WithObserver(observer),
	)
	if err != nil {
		return err
	}
	return nil
}

// Close 按创建的逆序释放资源。
func (st *stack) Close() error {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		errs = append(errs, st.closers[i]())
	}
	st.closers = nil
	return errors.Join(errs...)
}

// joinClose 在 err 之外追加 closeFn 的错误。
func joinClose(err error, closeFn func() error) error {
	return errors.Join(err, closeFn())
}

func newRedisClient(cfg xconf.RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MasterName:   cfg.MasterName,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
}

func newIndex(cfg *xconf.Config, schema *xgeo.Schema, client redis.UniversalClient, logger *slog.Logger) (xgeo.FastIndex, error) {
	if cfg.Index.Backend == xconf.BackendRedis {
		idx, err := xgeoredis.New(client,
			xgeoredis.WithKeyPrefix(cfg.Index.KeyPrefix),
			xgeoredis.WithSchema(schema),
			xgeoredis.WithOverfetch(cfg.Index.Overfetch),
			xgeoredis.WithPruneBatch(cfg.Index.PruneBatch),
			xgeoredis.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	idx, err := xgeomem.NewIndex(
		xgeomem.WithCapacity(cfg.Index.Capacity),
		xgeomem.WithSchema(schema),
	)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (st *stack) newPrimary(ctx context.Context, schema *xgeo.Schema, observer xmetrics.Observer) (xgeo.PrimaryStore, error) {
	cfg := st.cfg
	var primary xgeo.PrimaryStore
	switch cfg.Primary.Backend {
	case xconf.BackendPostGIS:
		store, err := st.newPostGIS(ctx, schema, observer)
		if err != nil {
			return nil, err
		}
		primary = store
	case xconf.BackendMongo:
		store, err := st.newMongo(ctx, schema, observer)
		if err != nil {
			return nil, err
		}
		primary = store
	default:
		store := xgeomem.NewStore(xgeomem.WithSchema(schema))
		if cfg.Primary.SeedFile != "" {
			entities, err := readSeedFile(cfg.Primary.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := store.Upsert(entities...); err != nil {
				return nil, fmt.Errorf("seed %s: %w", cfg.Primary.SeedFile, err)
			}
			st.logger.Info("primary seeded", "file", cfg.Primary.SeedFile, "entities", len(entities))
		}
		primary = store
	}

	if !cfg.Guard.Enabled {
		return primary, nil
	}
	g := cfg.Guard
	guarded, err := xguard.NewPrimary(primary,
		xguard.WithName(cfg.Primary.Backend),
		xguard.WithAttempts(g.Attempts),
		xguard.WithBackoff(xguard.NewExponentialBackoff(
			xguard.WithInitialDelay(g.InitialBackoff),
			xguard.WithMaxDelay(g.MaxBackoff),
		)),
		xguard.WithAttemptTimeout(g.AttemptTimeout),
		xguard.WithFailureThreshold(g.FailureThreshold),
		xguard.WithOpenTimeout(g.OpenTimeout),
		xguard.WithHalfOpenRequests(g.HalfOpenRequests),
		xguard.WithLogger(st.logger),
		xguard.WithObserver(observer),
	)
	if err != nil {
		return nil, err
	}
	return guarded, nil
}

func (st *stack) newPostGIS(ctx context.Context, schema *xgeo.Schema, observer xmetrics.Observer) (*xpostgis.Store, error) {
	cfg := st.cfg
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	st.closers = append(st.closers, db.Close)

	store, err := xpostgis.New(db,
		xpostgis.WithTable(cfg.Postgres.Table),
		xpostgis.WithSchema(schema),
		xpostgis.WithQueryTimeout(cfg.Primary.QueryTimeout),
		xpostgis.WithHealthTimeout(cfg.Primary.HealthTimeout),
		xpostgis.WithSlowQueryThreshold(cfg.Primary.SlowQueryThreshold),
		xpostgis.WithAsyncSlowQueryHook(func(info xpostgis.SlowQueryInfo) {
			st.logger.Warn("slow primary query", "backend", xconf.BackendPostGIS,
				"table", info.Table, "operation", info.Operation, "duration", info.Duration)
		}),
		xpostgis.WithObserver(observer),
	)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, store.Close)

	if err := store.Health(ctx); err != nil {
		return nil, err
	}
	if cfg.Primary.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (st *stack) newMongo(ctx context.Context, schema *xgeo.Schema, observer xmetrics.Observer) (*xgeomongo.Store, error) {
	cfg := st.cfg
	clientOpts := options.Client().ApplyURI(cfg.Mongo.URI)
	if cfg.Mongo.Timeout > 0 {
		clientOpts.SetTimeout(cfg.Mongo.Timeout)
	}
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	st.closers = append(st.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Primary.HealthTimeout)
		defer cancel()
		return client.Disconnect(ctx)
	})

	coll := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	store, err := xgeomongo.New(coll,
		xgeomongo.WithSchema(schema),
		xgeomongo.WithQueryTimeout(cfg.Primary.QueryTimeout),
		xgeomongo.WithHealthTimeout(cfg.Primary.HealthTimeout),
		xgeomongo.WithSlowQueryThreshold(cfg.Primary.SlowQueryThreshold),
		xgeomongo.WithAsyncSlowQueryHook(func(info xgeomongo.SlowQueryInfo) {
			st.logger.Warn("slow primary query", "backend", xconf.BackendMongo,
				"collection", info.Collection, "operation", info.Operation, "duration", info.Duration)
		}),
		xgeomongo.WithObserver(observer),
	)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, store.Close)

	if err := store.Health(ctx); err != nil {
		return nil, err
	}
	if cfg.Primary.EnsureSchema {
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// stalenessPolicy 按配置选择过期策略；只有单一 MaxAge 支持热更新。
func (st *stack) stalenessPolicy() xstale.Policy {
	c := st.cfg.Cache
	if len(c.MaxAgeByKind) > 0 {
		return xstale.NewPerKind(c.MaxAge, c.MaxAgeByKind)
	}
	st.maxAge = xstale.NewMaxAge(c.MaxAge)
	return st.maxAge
}

// pruner 返回索引的清理能力，不支持时返回 nil。
func (st *stack) pruner() xgeo.Pruner {
	p, _ := st.index.(xgeo.Pruner)
	return p
}

// newScheduler 创建调度器并注册配置中的预热、清理任务。
func (st *stack) newScheduler() (*xwarm.Scheduler, error) {
	cfg := st.cfg.Warm
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := []xwarm.SchedulerOption{
		xwarm.WithSchedulerLogger(st.logger),
		xwarm.WithLocation(loc),
	}
	if cfg.Lock {
		locker, err := xwarm.NewRedisLocker([]redis.UniversalClient{st.redis})
		if err != nil {
			return nil, err
		}
		opts = append(opts, xwarm.WithLocker(locker))
	}
	sched := xwarm.NewScheduler(opts...)

	jobOpts := []xwarm.JobOption{
		xwarm.WithLockTTL(cfg.LockTTL),
		xwarm.WithJobTimeout(cfg.Timeout),
	}
	if cfg.Schedule != "" {
		warmOpts := jobOpts
		if cfg.Immediate {
			warmOpts = append(warmOpts[:len(warmOpts):len(warmOpts)], xwarm.WithImmediate())
		}
		if _, err := sched.AddWarm(cfg.Schedule, st.warmer, warmOpts...); err != nil {
			return nil, err
		}
	}
	if cfg.PruneSchedule != "" {
		p := st.pruner()
		if p == nil {
			return nil, fmt.Errorf("index backend %s does not support prune", st.cfg.Index.Backend)
		}
		if _, err := sched.AddPrune(cfg.PruneSchedule, p, jobOpts...); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// instance 返回统计发布使用的实例名。
func (st *stack) instance() string {
	if st.cfg.Serve.Instance != "" {
		return st.cfg.Serve.Instance
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "xgeo"
}
