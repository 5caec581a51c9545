package xstale

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMaxAge_IsStale(t *testing.T) {
	p := NewMaxAge(time.Hour)

	assert.False(t, p.IsStale(now.Add(-59*time.Minute), now))
	assert.False(t, p.IsStale(now.Add(-time.Hour), now), "边界值不过期")
	assert.True(t, p.IsStale(now.Add(-time.Hour-time.Nanosecond), now))
	assert.True(t, p.IsStale(time.Time{}, now), "零值视为过期")
	assert.False(t, p.IsStale(now.Add(time.Minute), now), "时钟回拨不视为过期")
}

func TestMaxAge_DefaultAndReload(t *testing.T) {
	p := NewMaxAge(0)
	assert.Equal(t, DefaultMaxAge, p.MaxAge())

	p.SetMaxAge(10 * time.Minute)
	assert.True(t, p.IsStale(now.Add(-11*time.Minute), now))

	p.SetMaxAge(-1)
	assert.Equal(t, DefaultMaxAge, p.MaxAge())
}

func TestMaxAge_ConcurrentReload(t *testing.T) {
	p := NewMaxAge(time.Hour)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 100 {
				if i%2 == 0 {
					p.SetMaxAge(time.Duration(j+1) * time.Minute)
				} else {
					_ = p.IsStale(now.Add(-30*time.Minute), now)
				}
			}
		})
	}
	wg.Wait()
}

func TestPerKind(t *testing.T) {
	p := NewPerKind(time.Hour, map[string]time.Duration{
		"fuel":    5 * time.Minute,
		"ignored": 0,
	})

	fuel := xgeo.Entity{ID: "f", Kind: "fuel", LastRefreshed: now.Add(-10 * time.Minute)}
	cafe := xgeo.Entity{ID: "c", Kind: "cafe", LastRefreshed: now.Add(-10 * time.Minute)}

	assert.True(t, Check(p, fuel, now))
	assert.False(t, Check(p, cafe, now))
	assert.Equal(t, time.Hour, p.MaxAgeFor("ignored"))
	assert.False(t, p.IsStale(fuel.LastRefreshed, now))
}

func TestAdapters(t *testing.T) {
	assert.False(t, Never{}.IsStale(time.Time{}, now))

	calls := 0
	f := Func(func(last, n time.Time) bool {
		calls++
		return last.Before(n)
	})
	assert.True(t, Check(f, xgeo.Entity{LastRefreshed: now.Add(-time.Second)}, now))
	assert.Equal(t, 1, calls)
}
