package xconf

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/geo/xwarm"
)

// Validate 校验配置，返回的错误同时匹配 ErrInvalidConfig 与每个具体原因。
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(c.Cache.Validate())
	for kind, d := range c.Cache.MaxAgeByKind {
		if d <= 0 {
			add(fmt.Errorf("cache.max_age_by_kind.%s must be positive", kind))
		}
	}

	switch c.Index.Backend {
	case BackendMemory:
		if c.Index.Capacity <= 0 {
			add(errors.New("index.capacity must be positive"))
		}
	case BackendRedis:
		if len(c.Redis.Addrs) == 0 {
			add(errors.New("redis.addrs is required for the redis index"))
		}
	default:
		add(fmt.Errorf("index.backend %q is not one of memory, redis", c.Index.Backend))
	}

	switch c.Primary.Backend {
	case BackendMemory:
	case BackendPostGIS:
		if c.Postgres.DSN == "" {
			add(errors.New("postgres.dsn is required for the postgis primary"))
		}
	case BackendMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			add(errors.New("mongo.uri, mongo.database and mongo.collection are required for the mongo primary"))
		}
	default:
		add(fmt.Errorf("primary.backend %q is not one of memory, postgis, mongo", c.Primary.Backend))
	}

	if c.Guard.Enabled {
		if c.Guard.Attempts <= 0 {
			add(errors.New("guard.attempts must be positive"))
		}
		if c.Guard.FailureThreshold == 0 {
			add(errors.New("guard.failure_threshold must be positive"))
		}
		if c.Guard.OpenTimeout <= 0 {
			add(errors.New("guard.open_timeout must be positive"))
		}
	}

	if c.Warm.Lock && len(c.Redis.Addrs) == 0 {
		add(errors.New("warm.lock requires redis.addrs"))
	}
	if c.Warm.Schedule != "" && len(c.Warm.Regions) == 0 {
		add(errors.New("warm.schedule requires at least one region"))
	}
	if c.Serve.StatsInterval <= 0 || c.Serve.ShutdownTimeout <= 0 {
		add(errors.New("serve.stats_interval and serve.shutdown_timeout must be positive"))
	}
	if _, err := c.Warm.Location(); err != nil {
		add(err)
	}

	schema, err := c.SchemaOf()
	add(err)
	if err == nil {
		_, err = c.Warm.RegionsOf(schema)
		add(err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// SchemaOf 根据 schema 段构建属性声明；未声明任何属性时返回 nil。
func (c *Config) SchemaOf() (*xgeo.Schema, error) {
	if len(c.Schema) == 0 {
		return nil, nil
	}
	m := xgeo.NewIndexManager()
	for _, a := range c.Schema {
		kind, err := xgeo.ParseAttrKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("schema.%s: %w", a.Name, err)
		}
		m.Declare(a.Name, kind)
	}
	return m.Build()
}

// Location 返回 cron 使用的时区。
func (w WarmConfig) Location() (*time.Location, error) {
	if w.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("warm.timezone: %w", err)
	}
	return loc, nil
}

// RegionsOf 将区域配置转换为 xwarm.Region，并用 schema 校验过滤条件。
func (w WarmConfig) RegionsOf(schema *xgeo.Schema) ([]xwarm.Region, error) {
	out := make([]xwarm.Region, 0, len(w.Regions))
	seen := make(map[string]struct{}, len(w.Regions))
	for i, rc := range w.Regions {
		r, err := rc.Region()
		if err != nil {
			return nil, fmt.Errorf("warm.regions[%d]: %w", i, err)
		}
		if err := schema.Validate(r.Filters); err != nil {
			return nil, fmt.Errorf("warm.regions[%d]: %w", i, err)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("warm.regions[%d]: %w: %s", i, xwarm.ErrDuplicateRegion, r.Name)
		}
		seen[r.Name] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// Region 转换为 xwarm.Region。
func (rc RegionConfig) Region() (xwarm.Region, error) {
	center, err := xgeo.NewGeoKey(rc.Lat, rc.Lon)
	if err != nil {
		return xwarm.Region{}, err
	}
	unit, err := xgeo.ParseUnit(rc.Unit)
	if err != nil {
		return xwarm.Region{}, err
	}
	filters := make([]xgeo.Filter, 0, len(rc.Filters))
	for _, fc := range rc.Filters {
		f, err := fc.Filter()
		if err != nil {
			return xwarm.Region{}, err
		}
		filters = append(filters, f)
	}
	r := xwarm.Region{
		Name:    rc.Name,
		Center:  center,
		Radius:  xgeo.Distance{Value: rc.Radius, Unit: unit},
		Filters: filters,
		Limit:   rc.Limit,
	}
	return r, r.Validate()
}

// Filter 转换为 xgeo.Filter。Eq 与 Min/Max 互斥。
func (fc FilterConfig) Filter() (xgeo.Filter, error) {
	if fc.Eq != nil {
		if fc.Min != nil || fc.Max != nil {
			return xgeo.Filter{}, fmt.Errorf("%w: %s: eq cannot be combined with min/max", xgeo.ErrInvalidFilter, fc.Attr)
		}
		v, err := xgeo.ValueOf(fc.Eq)
		if err != nil {
			return xgeo.Filter{}, fmt.Errorf("%s: %w", fc.Attr, err)
		}
		return xgeo.Eq(fc.Attr, v), nil
	}
	if fc.Min == nil && fc.Max == nil {
		return xgeo.Filter{}, fmt.Errorf("%w: %s: one of eq, min, max is required", xgeo.ErrInvalidFilter, fc.Attr)
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if fc.Min != nil {
		lo = *fc.Min
	}
	if fc.Max != nil {
		hi = *fc.Max
	}
	return xgeo.Between(fc.Attr, lo, hi), nil
}
