package xstale

import (
	"sync/atomic"
	"time"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// DefaultMaxAge 是默认最大数据年龄。
const DefaultMaxAge = time.Hour

// Policy 判定一个缓存条目是否过期。实现必须并发安全。
type Policy interface {
	// IsStale 在 now - lastRefreshed 超过允许年龄时返回 true。
	// lastRefreshed 为零值时视为过期。
	IsStale(lastRefreshed, now time.Time) bool
}

// EntityPolicy 是可选扩展：按实体属性（如 Kind）判定过期。
// 协调器检测到该接口时优先使用 IsEntityStale。
type EntityPolicy interface {
	Policy
	IsEntityStale(e xgeo.Entity, now time.Time) bool
}

// Check 使用 p 判定实体是否过期，优先调用 EntityPolicy。
func Check(p Policy, e xgeo.Entity, now time.Time) bool {
	if ep, ok := p.(EntityPolicy); ok {
		return ep.IsEntityStale(e, now)
	}
	return p.IsStale(e.LastRefreshed, now)
}

func exceeds(lastRefreshed, now time.Time, maxAge time.Duration) bool {
	if lastRefreshed.IsZero() {
		return true
	}
	return now.Sub(lastRefreshed) > maxAge
}

// =============================================================================
// MaxAge
// =============================================================================

// MaxAge 是固定最大年龄策略，年龄可以在运行时原子更新。
type MaxAge struct {
	maxAge atomic.Int64
}

// NewMaxAge 创建固定最大年龄策略；d <= 0 时使用 DefaultMaxAge。
func NewMaxAge(d time.Duration) *MaxAge {
	p := &MaxAge{}
	p.SetMaxAge(d)
	return p
}

// IsStale 实现 Policy。
func (p *MaxAge) IsStale(lastRefreshed, now time.Time) bool {
	return exceeds(lastRefreshed, now, p.MaxAge())
}

// MaxAge 返回当前最大年龄。
func (p *MaxAge) MaxAge() time.Duration {
	return time.Duration(p.maxAge.Load())
}

// SetMaxAge 更新最大年龄；d <= 0 时恢复为 DefaultMaxAge。
func (p *MaxAge) SetMaxAge(d time.Duration) {
	if d <= 0 {
		d = DefaultMaxAge
	}
	p.maxAge.Store(int64(d))
}

// =============================================================================
// PerKind
// =============================================================================

// PerKind 按 Entity.Kind 选择最大年龄，未配置的类别使用默认值。
// 创建后不可变。
type PerKind struct {
	fallback time.Duration
	byKind   map[string]time.Duration
}

// NewPerKind 创建按类别的策略；fallback <= 0 时使用 DefaultMaxAge，
// byKind 中非正的值被忽略。
func NewPerKind(fallback time.Duration, byKind map[string]time.Duration) *PerKind {
	if fallback <= 0 {
		fallback = DefaultMaxAge
	}
	p := &PerKind{fallback: fallback, byKind: make(map[string]time.Duration, len(byKind))}
	for k, d := range byKind {
		if d > 0 {
			p.byKind[k] = d
		}
	}
	return p
}

// IsStale 实现 Policy，使用默认年龄。
func (p *PerKind) IsStale(lastRefreshed, now time.Time) bool {
	return exceeds(lastRefreshed, now, p.fallback)
}

// IsEntityStale 实现 EntityPolicy。
func (p *PerKind) IsEntityStale(e xgeo.Entity, now time.Time) bool {
	return exceeds(e.LastRefreshed, now, p.MaxAgeFor(e.Kind))
}

// MaxAgeFor 返回类别对应的最大年龄。
func (p *PerKind) MaxAgeFor(kind string) time.Duration {
	if d, ok := p.byKind[kind]; ok {
		return d
	}
	return p.fallback
}

// =============================================================================
// 适配器
// =============================================================================

// Never 认为所有条目都新鲜。
type Never struct{}

// IsStale 总是返回 false。
func (Never) IsStale(time.Time, time.Time) bool { return false }

// Func 将函数适配为 Policy。
type Func func(lastRefreshed, now time.Time) bool

// IsStale 调用 f。
func (f Func) IsStale(lastRefreshed, now time.Time) bool { return f(lastRefreshed, now) }

var (
	_ Policy       = (*MaxAge)(nil)
	_ EntityPolicy = (*PerKind)(nil)
	_ Policy       = Never{}
	_ Policy       = Func(nil)
)
