package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgeo/pkg/config/xconf"
	"github.com/omeyang/xgeo/pkg/geo/xgeo"
	"github.com/omeyang/xgeo/pkg/observability/xlog"
)

// =============================================================================
// 测试数据
// =============================================================================

// 罗马斗兽场附近的三家餐厅与一家米兰餐厅。
const seedJSON = `[
  {"id": "colosseo", "lat": 41.8902, "lon": 12.4922, "kind": "restaurant",
   "attrs": {"cuisine": "italian", "rating": 4.6}, "props": {"name": "Trattoria Colosseo"}},
  {"id": "monti", "lat": 41.8947, "lon": 12.4922, "kind": "restaurant",
   "attrs": {"cuisine": "italian", "rating": 3.9}},
  {"id": "sakura", "lat": 41.8920, "lon": 12.4922, "kind": "restaurant",
   "attrs": {"cuisine": "japanese", "rating": 4.2}},
  {"id": "brera", "lat": 45.4720, "lon": 9.1880, "kind": "restaurant",
   "attrs": {"cuisine": "italian", "rating": 4.8}}
]`

const configTemplate = `
cache:
  max_age: 1h
index:
  backend: %s
  key_prefix: "{t}"
primary:
  backend: memory
  seed_file: %q
schema:
  - name: cuisine
    kind: equality
  - name: rating
    kind: range
redis:
  addrs: [%q]
warm:
  schedule: "@every 1h"
  immediate: true
  regions:
    - name: rome
      lat: 41.8902
      lon: 12.4922
      radius: 2
      unit: km
    - name: milan
      lat: 45.4642
      lon: 9.19
      radius: 3
      unit: km
log:
  level: warn
serve:
  instance: test-1
  stats_interval: 20ms
  shutdown_timeout: 5s
`

// writeConfig 写入种子文件与配置文件，返回配置路径。redisAddr 为空时使用内存索引。
func writeConfig(t *testing.T, redisAddr string) string {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0600))

	backend := xconf.BackendMemory
	if redisAddr != "" {
		backend = xconf.BackendRedis
	} else {
		redisAddr = "127.0.0.1:6379"
	}
	path := filepath.Join(dir, "xgeo.yaml")
	content := fmt.Sprintf(configTemplate, backend, seed, redisAddr)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// runCLI 执行命令，返回退出码与两路输出。
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(append([]string{"xgeoctl"}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// =============================================================================
// 参数解析
// =============================================================================

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name    string
		eqs     []string
		mins    []string
		maxs    []string
		want    []xgeo.Filter
		wantErr bool
	}{
		{name: "空", want: []xgeo.Filter{}},
		{
			name: "字符串等值",
			eqs:  []string{"cuisine=italian"},
			want: []xgeo.Filter{xgeo.Eq("cuisine", xgeo.StringValue("italian"))},
		},
		{
			name: "布尔与数值等值",
			eqs:  []string{"is_active=true", "stars = 3"},
			want: []xgeo.Filter{
				xgeo.Eq("is_active", xgeo.BoolValue(true)),
				xgeo.Eq("stars", xgeo.NumberValue(3)),
			},
		},
		{
			name: "上下界",
			mins: []string{"rating=4"},
			maxs: []string{"price=2.5"},
			want: []xgeo.Filter{xgeo.AtLeast("rating", 4), xgeo.AtMost("price", 2.5)},
		},
		{name: "缺少等号", eqs: []string{"cuisine"}, wantErr: true},
		{name: "属性名为空", eqs: []string{"=x"}, wantErr: true},
		{name: "下界不是数值", mins: []string{"rating=high"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilters(tt.eqs, tt.mins, tt.maxs)
			if tt.wantErr {
				var ue *usageError
				assert.ErrorAs(t, err, &ue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilters_BoundsAreOpenEnded(t *testing.T) {
	got, err := parseFilters(nil, []string{"rating=4"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasUpperBound())
	assert.True(t, math.IsInf(got[0].Max, 1))
}

func TestIsCLIUsageError(t *testing.T) {
	assert.True(t, isCLIUsageError(errors.New("flag provided but not defined: -nope")))
	assert.True(t, isCLIUsageError(errors.New(`Required flag "lat" not set`)))
	assert.False(t, isCLIUsageError(errors.New("redis ping: connection refused")))
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 2, exitCode(usagef("bad %s", "input"), &buf))
	assert.Contains(t, buf.String(), "bad input")

	buf.Reset()
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", &usageError{msg: "x"}), &buf))

	buf.Reset()
	assert.Equal(t, 1, exitCode(errors.New("boom"), &buf))
	assert.Contains(t, buf.String(), "boom")
}

// =============================================================================
// 命令
// =============================================================================

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, Version)
}

func TestRun_QueryJSON(t *testing.T) {
	cfg := writeConfig(t, "")

	code, out, errOut := runCLI(t, "-c", cfg, "query",
		"--lat", "41.8902", "--lon", "12.4922", "--radius", "1", "--unit", "km",
		"--result-unit", "m", "--eq", "cuisine=italian", "--json")
	require.Equal(t, 0, code, errOut)

	var res resultView
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "primary_store", res.Source)
	assert.Equal(t, "m", res.Unit)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "colosseo", res.Hits[0].ID)
	assert.Equal(t, "monti", res.Hits[1].ID)
	assert.InDelta(t, 0, res.Hits[0].Distance, 0.01)
	assert.InDelta(t, 500, res.Hits[1].Distance, 5)
	assert.Equal(t, "Trattoria Colosseo", res.Hits[0].Props["name"])
	assert.Equal(t, "italian", res.Hits[0].Attrs["cuisine"])
}

func TestRun_QueryTable(t *testing.T) {
	cfg := writeConfig(t, "")

	code, out, errOut := runCLI(t, "-c", cfg, "query",
		"--lat", "41.8902", "--lon", "12.4922", "--radius", "1", "--unit", "km",
		"--min", "rating=4")
	require.Equal(t, 0, code, errOut)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "DISTANCE (km)")
	assert.True(t, strings.HasPrefix(lines[1], "colosseo"))
	assert.True(t, strings.HasPrefix(lines[2], "sakura"))
	assert.Equal(t, "2 result(s) from primary_store", lines[3])
}

func TestRun_QueryUsageErrors(t *testing.T) {
	cfg := writeConfig(t, "")
	tests := []struct {
		name string
		args []string
	}{
		{"缺少必填参数", []string{"query", "--lon", "12.4", "--radius", "1"}},
		{"纬度越界", []string{"query", "--lat", "91", "--lon", "12.4", "--radius", "1"}},
		{"未知单位", []string{"query", "--lat", "41.9", "--lon", "12.4", "--radius", "1", "--unit", "parsec"}},
		{"过滤条件格式错误", []string{"query", "--lat", "41.9", "--lon", "12.4", "--radius", "1", "--eq", "cuisine"}},
		{"未声明的属性", []string{"query", "--lat", "41.9", "--lon", "12.4", "--radius", "1", "--eq", "parking=true"}},
		{"半径非正", []string{"query", "--lat", "41.9", "--lon", "12.4", "--radius", "0"}},
		{"未知参数", []string{"query", "--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, append([]string{"-c", cfg}, tt.args...)...)
			assert.Equal(t, 2, code, errOut)
		})
	}
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: cassandra\n"), 0600))

	code, _, errOut := runCLI(t, "-c", path, "query", "--lat", "1", "--lon", "1", "--radius", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "cassandra")
}

func TestRun_Warm(t *testing.T) {
	cfg := writeConfig(t, "")

	t.Run("全部区域", func(t *testing.T) {
		code, out, errOut := runCLI(t, "-c", cfg, "warm")
		require.Equal(t, 0, code, errOut)
		assert.Contains(t, out, "rome")
		assert.Contains(t, out, "milan")
	})

	t.Run("指定区域", func(t *testing.T) {
		code, out, errOut := runCLI(t, "-c", cfg, "warm", "milan")
		require.Equal(t, 0, code, errOut)
		assert.NotContains(t, out, "rome")
		assert.Regexp(t, `milan\s+1\s`, out)
	})

	t.Run("未知区域", func(t *testing.T) {
		code, _, _ := runCLI(t, "-c", cfg, "warm", "naples")
		assert.Equal(t, 2, code)
	})
}

func TestRun_InvalidateAndPrune(t *testing.T) {
	cfg := writeConfig(t, "")

	code, out, errOut := runCLI(t, "-c", cfg, "invalidate", "colosseo", "monti")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "invalidated colosseo\ninvalidated monti\n", out)

	code, _, _ = runCLI(t, "-c", cfg, "invalidate")
	assert.Equal(t, 2, code)

	code, out, errOut = runCLI(t, "-c", cfg, "prune")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "pruned 0 expired entries\n", out)
}

func TestRun_WarmThenQueryHitsRedisIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	code, _, errOut := runCLI(t, "-c", cfg, "warm", "rome")
	require.Equal(t, 0, code, errOut)
	assert.True(t, mr.Exists("{t}:ent:colosseo"))

	code, out, errOut := runCLI(t, "-c", cfg, "query",
		"--lat", "41.8902", "--lon", "12.4922", "--radius", "1", "--unit", "km", "--json")
	require.Equal(t, 0, code, errOut)
	var res resultView
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "fast_index", res.Source)
	assert.Len(t, res.Hits, 3)

	code, out, errOut = runCLI(t, "-c", cfg, "query",
		"--lat", "41.8902", "--lon", "12.4922", "--radius", "1", "--unit", "km", "--bypass", "--json")
	require.Equal(t, 0, code, errOut)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "primary_store", res.Source)
}

func TestRun_Stats(t *testing.T) {
	t.Run("无 redis", func(t *testing.T) {
		code, _, _ := runCLI(t, "-c", writeConfig(t, ""), "stats")
		assert.Equal(t, 2, code)
	})

	t.Run("读取已发布快照", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := writeConfig(t, mr.Addr())

		for _, inst := range []string{"node-b", "node-a"} {
			data, err := json.Marshal(statsSnapshot{
				Instance: inst,
				At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Cache:    cacheStatsView{Hits: 3, Misses: 1, HitRatio: 0.75},
			})
			require.NoError(t, err)
			require.NoError(t, mr.Set(statsKey("{t}", inst), string(data)))
		}

		code, out, errOut := runCLI(t, "-c", cfg, "stats", "--json")
		require.Equal(t, 0, code, errOut)
		var snaps []statsSnapshot
		require.NoError(t, json.Unmarshal([]byte(out), &snaps))
		require.Len(t, snaps, 2)
		assert.Equal(t, "node-a", snaps[0].Instance)
		assert.Equal(t, uint64(3), snaps[1].Cache.Hits)

		code, out, errOut = runCLI(t, "-c", cfg, "stats")
		require.Equal(t, 0, code, errOut)
		assert.Contains(t, out, "node-b")
		assert.Contains(t, out, "0.75")
	})
}

// =============================================================================
// serve
// =============================================================================

func TestServe_WarmsPublishesAndShutsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var errOut bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- cmdServe(ctx, cfg, "", &errOut) }()

	// 启动即预热
	require.Eventually(t, func() bool { return mr.Exists("{t}:ent:brera") }, 5*time.Second, 10*time.Millisecond)
	// 周期发布统计，等到快照包含一次完成的预热
	require.Eventually(t, func() bool {
		snap, ok := publishedSnapshot(mr)
		return ok && len(snap.Jobs) > 0 && snap.Jobs[0].Runs >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}

	snap, ok := publishedSnapshot(mr)
	require.True(t, ok)
	assert.Equal(t, "test-1", snap.Instance)
	require.NotEmpty(t, snap.Jobs)
	assert.Equal(t, "warm", snap.Jobs[0].Name)
	assert.Zero(t, snap.Jobs[0].Failures)
}

func publishedSnapshot(mr *miniredis.Miniredis) (statsSnapshot, bool) {
	raw, err := mr.Get(statsKey("{t}", "test-1"))
	if err != nil {
		return statsSnapshot{}, false
	}
	var snap statsSnapshot
	if json.Unmarshal([]byte(raw), &snap) != nil {
		return statsSnapshot{}, false
	}
	return snap, true
}

func TestServe_ApplyReload(t *testing.T) {
	cfg := xconf.Default()
	st, err := newStack(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger, cleanup, err := xlog.New().SetOutput(&bytes.Buffer{}).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	srv := &server{st: st, logger: logger}
	require.NotNil(t, st.maxAge)

	next := xconf.Default()
	next.Cache.MaxAge = 5 * time.Minute
	next.Log.Level = "debug"
	srv.applyReload(next)
	assert.Equal(t, 5*time.Minute, st.maxAge.MaxAge())
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())

	t.Run("命令行指定级别时不覆盖", func(t *testing.T) {
		srv.levelOverride = "info"
		next.Log.Level = "error"
		srv.applyReload(next)
		assert.Equal(t, xlog.LevelDebug, logger.GetLevel())
	})

	t.Run("按类别配置时不更新", func(t *testing.T) {
		next.Cache.MaxAge = time.Minute
		next.Cache.MaxAgeByKind = map[string]time.Duration{"pharmacy": time.Minute}
		srv.applyReload(next)
		assert.Equal(t, 5*time.Minute, st.maxAge.MaxAge())
	})
}

func TestReadSeedFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := readSeedFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id": "x", "lat": 95, "lon": 0}]`), 0600))
	_, err = readSeedFile(bad)
	assert.ErrorIs(t, err, xgeo.ErrInvalidGeoKey)

	noID := filepath.Join(dir, "noid.json")
	require.NoError(t, os.WriteFile(noID, []byte(`[{"lat": 1, "lon": 1}]`), 0600))
	_, err = readSeedFile(noID)
	assert.ErrorIs(t, err, xgeo.ErrEmptyID)
}
