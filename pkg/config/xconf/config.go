package xconf

import (
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeocache"
	"github.com/omeyang/xgeo/pkg/storage/xgeomem"
	"github.com/omeyang/xgeo/pkg/storage/xgeoredis"
	"github.com/omeyang/xgeo/pkg/storage/xpostgis"
)

// 后端名称。
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendMongo   = "mongo"
	BackendPostGIS = "postgis"
)

// Config 是 xgeo 的完整文件配置。
type Config struct {
	Cache    CacheConfig    `koanf:"cache"`
	Index    IndexConfig    `koanf:"index"`
	Primary  PrimaryConfig  `koanf:"primary"`
	Schema   []AttrConfig   `koanf:"schema"`
	Redis    RedisConfig    `koanf:"redis"`
	Mongo    MongoConfig    `koanf:"mongo"`
	Postgres PostgresConfig `koanf:"postgres"`
	Guard    GuardConfig    `koanf:"guard"`
	Warm     WarmConfig     `koanf:"warm"`
	Log      LogConfig      `koanf:"log"`
	Serve    ServeConfig    `koanf:"serve"`
}

// CacheConfig 是协调器配置，附加按类别的最大年龄。
type CacheConfig struct {
	xgeocache.Config `koanf:",squash"`

	// MaxAgeByKind 按 Entity.Kind 覆盖 MaxAge。非空时不支持热更新 MaxAge。
	MaxAgeByKind map[string]time.Duration `koanf:"max_age_by_kind"`
}

// IndexConfig 选择 FastIndex 后端。
type IndexConfig struct {
	// Backend 为 redis 或 memory。
	Backend    string `koanf:"backend"`
	KeyPrefix  string `koanf:"key_prefix"`
	Overfetch  int    `koanf:"overfetch"`
	PruneBatch int    `koanf:"prune_batch"`
	// Capacity 仅用于 memory 后端。
	Capacity int `koanf:"capacity"`
}

// PrimaryConfig 选择 PrimaryStore 后端。
type PrimaryConfig struct {
	// Backend 为 postgis、mongo 或 memory。
	Backend            string        `koanf:"backend"`
	QueryTimeout       time.Duration `koanf:"query_timeout"`
	HealthTimeout      time.Duration `koanf:"health_timeout"`
	SlowQueryThreshold time.Duration `koanf:"slow_query_threshold"`
	// EnsureSchema 为 true 时启动阶段创建表、索引。
	EnsureSchema bool `koanf:"ensure_schema"`
	// SeedFile 是 JSON 实体数组，启动时写入 PrimaryStore（memory 后端用于演示）。
	SeedFile string `koanf:"seed_file"`
}

// AttrConfig 声明一个可过滤属性。
type AttrConfig struct {
	Name string `koanf:"name"`
	// Kind 为 equality 或 range。
	Kind string `koanf:"kind"`
}

// RedisConfig 是 go-redis UniversalClient 的连接配置。
type RedisConfig struct {
	Addrs        []string      `koanf:"addrs"`
	Username     string        `koanf:"username"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	MasterName   string        `koanf:"master_name"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	PoolSize     int           `koanf:"pool_size"`
}

// MongoConfig 是 MongoDB 连接配置。
type MongoConfig struct {
	URI        string        `koanf:"uri"`
	Database   string        `koanf:"database"`
	Collection string        `koanf:"collection"`
	Timeout    time.Duration `koanf:"timeout"`
}

// PostgresConfig 是 PostgreSQL 连接配置。
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	Table           string        `koanf:"table"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// GuardConfig 配置 PrimaryStore 的重试与熔断。
type GuardConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Attempts         int           `koanf:"attempts"`
	InitialBackoff   time.Duration `koanf:"initial_backoff"`
	MaxBackoff       time.Duration `koanf:"max_backoff"`
	AttemptTimeout   time.Duration `koanf:"attempt_timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
	HalfOpenRequests uint32        `koanf:"half_open_requests"`
}

// WarmConfig 配置定时预热与索引清理。
type WarmConfig struct {
	// Schedule 为预热的 cron 表达式，空表示不定时预热。
	Schedule string `koanf:"schedule"`
	// PruneSchedule 为索引清理的 cron 表达式，空表示不清理。
	PruneSchedule string `koanf:"prune_schedule"`
	// Immediate 为 true 时 serve 启动即预热一次。
	Immediate   bool          `koanf:"immediate"`
	Lock        bool          `koanf:"lock"`
	LockTTL     time.Duration `koanf:"lock_ttl"`
	Timeout     time.Duration `koanf:"timeout"`
	BatchSize   int           `koanf:"batch_size"`
	Concurrency int           `koanf:"concurrency"`
	// Timezone 为 IANA 时区名，空表示本地时区。
	Timezone string         `koanf:"timezone"`
	Regions  []RegionConfig `koanf:"regions"`
}

// RegionConfig 是一个预热区域。
type RegionConfig struct {
	Name    string         `koanf:"name"`
	Lat     float64        `koanf:"lat"`
	Lon     float64        `koanf:"lon"`
	Radius  float64        `koanf:"radius"`
	Unit    string         `koanf:"unit"`
	Limit   int            `koanf:"limit"`
	Filters []FilterConfig `koanf:"filters"`
}

// FilterConfig 是一个过滤条件：设置 Eq 时为等值过滤，否则为区间过滤。
type FilterConfig struct {
	Attr string   `koanf:"attr"`
	Eq   any      `koanf:"eq"`
	Min  *float64 `koanf:"min"`
	Max  *float64 `koanf:"max"`
}

// LogConfig 配置日志输出。File 为空时写 stderr。
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// ServeConfig 配置常驻进程。
type ServeConfig struct {
	// StatsInterval 是统计快照的记录与发布周期。
	StatsInterval time.Duration `koanf:"stats_interval"`
	// ShutdownTimeout 是优雅关闭的等待上限。
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// Instance 是发布统计时使用的实例名，空时使用主机名。
	Instance string `koanf:"instance"`
}

// Default 返回默认配置：内存索引与内存主存储，关闭熔断与定时任务。
func Default() *Config {
	return &Config{
		Cache: CacheConfig{Config: xgeocache.DefaultConfig()},
		Index: IndexConfig{
			Backend:    BackendMemory,
			KeyPrefix:  xgeoredis.DefaultKeyPrefix,
			Overfetch:  xgeoredis.DefaultOverfetch,
			PruneBatch: xgeoredis.DefaultPruneBatch,
			Capacity:   xgeomem.DefaultCapacity,
		},
		Primary: PrimaryConfig{
			Backend:            BackendMemory,
			QueryTimeout:       10 * time.Second,
			HealthTimeout:      2 * time.Second,
			SlowQueryThreshold: 500 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addrs:        []string{"127.0.0.1:6379"},
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Mongo: MongoConfig{
			Database:   "xgeo",
			Collection: "places",
			Timeout:    10 * time.Second,
		},
		Postgres: PostgresConfig{
			Table:           xpostgis.DefaultTable,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Guard: GuardConfig{
			Attempts:         3,
			InitialBackoff:   50 * time.Millisecond,
			MaxBackoff:       time.Second,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
		Warm: WarmConfig{
			LockTTL:     2 * time.Minute,
			Timeout:     10 * time.Minute,
			BatchSize:   500,
			Concurrency: 2,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
		Serve: ServeConfig{
			StatsInterval:   time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}
