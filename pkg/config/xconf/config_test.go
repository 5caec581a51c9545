package xconf

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xwarm"
)

// =============================================================================
// 测试数据
// =============================================================================

const fullYAML = `
cache:
  default_ttl: 30m
  max_age: 10m
  default_limit: 20
  max_result_limit: 200
  min_fresh_results: 3
  max_age_by_kind:
    pharmacy: 2m
index:
  backend: redis
  key_prefix: "{geo-test}"
primary:
  backend: postgis
  query_timeout: 4s
  ensure_schema: true
schema:
  - name: cuisine
    kind: equality
  - name: rating
    kind: range
  - name: is_active
    kind: equality
redis:
  addrs: ["redis-0:6379", "redis-1:6379"]
  db: 2
postgres:
  dsn: postgres://xgeo@db/xgeo?sslmode=disable
  table: restaurants
guard:
  enabled: true
  attempts: 4
warm:
  schedule: "@every 10m"
  lock: true
  timezone: Europe/Rome
  regions:
    - name: rome
      lat: 41.9028
      lon: 12.4964
      radius: 5
      unit: km
      limit: 1000
      filters:
        - attr: cuisine
          eq: italian
        - attr: rating
          min: 4
        - attr: is_active
          eq: true
log:
  level: debug
  file: /var/log/xgeo/xgeo.log
`

const fullJSON = `{
  "cache": {"max_age": "15m"},
  "primary": {"backend": "mongo"},
  "mongo": {"uri": "mongodb://mongo:27017", "database": "geo"},
  "schema": [{"name": "price_range", "kind": "range"}],
  "warm": {"regions": [{"name": "milan", "lat": 45.4642, "lon": 9.19, "radius": 2000,
    "filters": [{"attr": "price_range", "max": 2}]}]}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// Load / Parse
// =============================================================================

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "xgeo.yaml", fullYAML))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, 20, cfg.Cache.DefaultLimit)
	assert.Equal(t, 3, cfg.Cache.MinFreshResults)
	assert.Equal(t, map[string]time.Duration{"pharmacy": 2 * time.Minute}, cfg.Cache.MaxAgeByKind)
	// 未出现的键保留默认值
	assert.Equal(t, Default().Cache.WriteBackWorkers, cfg.Cache.WriteBackWorkers)

	assert.Equal(t, BackendRedis, cfg.Index.Backend)
	assert.Equal(t, "{geo-test}", cfg.Index.KeyPrefix)
	assert.Equal(t, BackendPostGIS, cfg.Primary.Backend)
	assert.Equal(t, 4*time.Second, cfg.Primary.QueryTimeout)
	assert.True(t, cfg.Primary.EnsureSchema)
	assert.Equal(t, []string{"redis-0:6379", "redis-1:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "restaurants", cfg.Postgres.Table)
	assert.True(t, cfg.Guard.Enabled)
	assert.Equal(t, 4, cfg.Guard.Attempts)
	assert.Equal(t, uint32(5), cfg.Guard.FailureThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Len(t, cfg.Warm.Regions, 1)
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "xgeo.json", fullJSON))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, BackendMongo, cfg.Primary.Backend)
	assert.Equal(t, "geo", cfg.Mongo.Database)
	assert.Equal(t, "places", cfg.Mongo.Collection)

	schema, err := cfg.SchemaOf()
	require.NoError(t, err)
	regions, err := cfg.Warm.RegionsOf(schema)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, xgeo.AtMost("price_range", 2), regions[0].Filters[0])
	assert.InDelta(t, 2000, regions[0].Radius.Meters(), 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Load(writeFile(t, "xgeo.toml", "a = 1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = Load(writeFile(t, "bad.yaml", "cache: [unclosed"))
	assert.ErrorIs(t, err, ErrParseFailed)

	_, err = Load(writeFile(t, "bad.json", "{"))
	assert.ErrorIs(t, err, ErrParseFailed)

	_, err = Load(writeFile(t, "types.yaml", "cache:\n  default_ttl: forever\n"))
	assert.ErrorIs(t, err, ErrUnmarshalFailed)
}

func TestParse_EmptyDataIsDefault(t *testing.T) {
	cfg, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Parse([]byte("{}"), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		cause  error
	}{
		{"未知索引后端", func(c *Config) { c.Index.Backend = "etcd" }, nil},
		{"内存索引容量为零", func(c *Config) { c.Index.Capacity = 0 }, nil},
		{"redis 索引缺少地址", func(c *Config) {
			c.Index.Backend = BackendRedis
			c.Redis.Addrs = nil
		}, nil},
		{"未知主存储后端", func(c *Config) { c.Primary.Backend = "sqlite" }, nil},
		{"postgis 缺少 dsn", func(c *Config) { c.Primary.Backend = BackendPostGIS }, nil},
		{"mongo 缺少 uri", func(c *Config) { c.Primary.Backend = BackendMongo }, nil},
		{"缓存默认上限超过最大上限", func(c *Config) { c.Cache.DefaultLimit = c.Cache.MaxResultLimit + 1 }, nil},
		{"按类别年龄非正", func(c *Config) { c.Cache.MaxAgeByKind = map[string]time.Duration{"x": 0} }, nil},
		{"熔断阈值为零", func(c *Config) {
			c.Guard.Enabled = true
			c.Guard.FailureThreshold = 0
		}, nil},
		{"定时预热没有区域", func(c *Config) { c.Warm.Schedule = "@every 1m" }, nil},
		{"未知时区", func(c *Config) { c.Warm.Timezone = "Mars/Olympus" }, nil},
		{"未知属性类型", func(c *Config) {
			c.Schema = []AttrConfig{{Name: "cuisine", Kind: "fuzzy"}}
		}, xgeo.ErrInvalidSchema},
		{"重复属性", func(c *Config) {
			c.Schema = []AttrConfig{{Name: "a", Kind: "equality"}, {Name: "a", Kind: "range"}}
		}, xgeo.ErrDuplicateAttr},
		{"区域坐标越界", func(c *Config) {
			c.Warm.Regions = []RegionConfig{{Name: "x", Lat: 91, Radius: 1}}
		}, xgeo.ErrInvalidGeoKey},
		{"区域半径为零", func(c *Config) {
			c.Warm.Regions = []RegionConfig{{Name: "x", Lat: 1, Lon: 1}}
		}, xwarm.ErrInvalidRegion},
		{"区域单位未知", func(c *Config) {
			c.Warm.Regions = []RegionConfig{{Name: "x", Lat: 1, Lon: 1, Radius: 1, Unit: "league"}}
		}, xgeo.ErrInvalidRadius},
		{"区域重名", func(c *Config) {
			r := RegionConfig{Name: "x", Lat: 1, Lon: 1, Radius: 1}
			c.Warm.Regions = []RegionConfig{r, r}
		}, xwarm.ErrDuplicateRegion},
		{"过滤属性未声明", func(c *Config) {
			c.Schema = []AttrConfig{{Name: "cuisine", Kind: "equality"}}
			c.Warm.Regions = []RegionConfig{{Name: "x", Lat: 1, Lon: 1, Radius: 1,
				Filters: []FilterConfig{{Attr: "rating", Min: ptr(4.0)}}}}
		}, xgeo.ErrUnknownAttr},
		{"等值属性使用区间过滤", func(c *Config) {
			c.Schema = []AttrConfig{{Name: "cuisine", Kind: "equality"}}
			c.Warm.Regions = []RegionConfig{{Name: "x", Lat: 1, Lon: 1, Radius: 1,
				Filters: []FilterConfig{{Attr: "cuisine", Max: ptr(1.0)}}}}
		}, xgeo.ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Index.Backend = "etcd"
	cfg.Primary.Backend = "sqlite"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.backend")
	assert.Contains(t, err.Error(), "primary.backend")
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	_, err := Load(writeFile(t, "xgeo.yaml", "index:\n  backend: etcd\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// =============================================================================
// 转换
// =============================================================================

func TestSchemaOf(t *testing.T) {
	cfg := Default()
	schema, err := cfg.SchemaOf()
	require.NoError(t, err)
	assert.Nil(t, schema)

	cfg.Schema = []AttrConfig{{Name: "cuisine", Kind: "eq"}, {Name: "rating", Kind: "range"}}
	schema, err = cfg.SchemaOf()
	require.NoError(t, err)
	assert.Equal(t, []string{"cuisine"}, schema.EqualityAttrs())
	assert.Equal(t, []string{"rating"}, schema.RangeAttrs())
}

func TestRegionsOf_FromYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "xgeo.yaml", fullYAML))
	require.NoError(t, err)
	schema, err := cfg.SchemaOf()
	require.NoError(t, err)

	regions, err := cfg.Warm.RegionsOf(schema)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, "rome", r.Name)
	assert.InDelta(t, 41.9028, r.Center.Lat(), 1e-9)
	assert.Equal(t, xgeo.Km(5), r.Radius)
	assert.Equal(t, 1000, r.Limit)
	assert.Equal(t, []xgeo.Filter{
		xgeo.Eq("cuisine", xgeo.StringValue("italian")),
		xgeo.AtLeast("rating", 4),
		xgeo.Eq("is_active", xgeo.BoolValue(true)),
	}, r.Filters)

	loc, err := cfg.Warm.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", loc.String())
}

func TestFilterConfig(t *testing.T) {
	t.Run("等值数值", func(t *testing.T) {
		f, err := FilterConfig{Attr: "price_range", Eq: 2}.Filter()
		require.NoError(t, err)
		assert.Equal(t, xgeo.Eq("price_range", xgeo.NumberValue(2)), f)
	})
	t.Run("闭区间", func(t *testing.T) {
		f, err := FilterConfig{Attr: "rating", Min: ptr(3.5), Max: ptr(4.5)}.Filter()
		require.NoError(t, err)
		assert.Equal(t, xgeo.Between("rating", 3.5, 4.5), f)
	})
	t.Run("仅上界", func(t *testing.T) {
		f, err := FilterConfig{Attr: "rating", Max: ptr(2.0)}.Filter()
		require.NoError(t, err)
		assert.True(t, math.IsInf(f.Min, -1))
		assert.InDelta(t, 2.0, f.Max, 0)
	})
	t.Run("缺少操作数", func(t *testing.T) {
		_, err := FilterConfig{Attr: "rating"}.Filter()
		assert.ErrorIs(t, err, xgeo.ErrInvalidFilter)
	})
	t.Run("等值与区间混用", func(t *testing.T) {
		_, err := FilterConfig{Attr: "rating", Eq: 4, Min: ptr(1.0)}.Filter()
		assert.ErrorIs(t, err, xgeo.ErrInvalidFilter)
	})
	t.Run("不支持的等值类型", func(t *testing.T) {
		_, err := FilterConfig{Attr: "tags", Eq: []any{"a"}}.Filter()
		assert.ErrorIs(t, err, xgeo.ErrInvalidFilter)
	})
}

func ptr[T any](v T) *T { return &v }
