package xgeocache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/xgeo/pkg/geo/xstale"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, xstale.DefaultMaxAge, cfg.MaxAge)
	assert.Equal(t, DefaultMaxResultLimit, cfg.MaxResultLimit)
	assert.Equal(t, 1, cfg.MinFreshResults)
	assert.False(t, cfg.DisableSingleflight)
}

func TestConfig_Merge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.merge(Config{DefaultTTL: 2 * time.Hour, MaxResultLimit: 100, DisableSingleflight: true})

	assert.Equal(t, 2*time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 100, cfg.MaxResultLimit)
	assert.True(t, cfg.DisableSingleflight)
	// 零值字段保留原值
	assert.Equal(t, DefaultLimit, cfg.DefaultLimit)
	assert.Equal(t, DefaultPrimaryTimeout, cfg.PrimaryTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ttl", func(c *Config) { c.DefaultTTL = 0 }},
		{"max limit", func(c *Config) { c.MaxResultLimit = 0 }},
		{"default limit", func(c *Config) { c.DefaultLimit = -1 }},
		{"default exceeds max", func(c *Config) { c.DefaultLimit = c.MaxResultLimit + 1 }},
		{"min fresh", func(c *Config) { c.MinFreshResults = 0 }},
		{"workers", func(c *Config) { c.WriteBackWorkers = 0 }},
		{"queue", func(c *Config) { c.WriteBackQueueSize = 0 }},
		{"primary timeout", func(c *Config) { c.PrimaryTimeout = 0 }},
		{"write-back timeout", func(c *Config) { c.WriteBackTimeout = -time.Second }},
		{"error buffer", func(c *Config) { c.ErrorBufferSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestOptions_NilSafe(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{WithLogger(nil), WithObserver(nil), WithClock(nil), WithStalenessPolicy(nil)} {
		opt(o)
	}
	assert.NotNil(t, o.Logger)
	assert.NotNil(t, o.Observer)
	assert.NotNil(t, o.Clock)
	assert.Nil(t, o.Staleness)
}
