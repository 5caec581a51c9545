package xconf

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
	errs []error
}

func (r *reloads) callback(cfg *Config, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) last() (*Config, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cfg *Config
	if len(r.cfgs) > 0 {
		cfg = r.cfgs[len(r.cfgs)-1]
	}
	return cfg, len(r.cfgs), len(r.errs)
}

func startWatch(t *testing.T, path string, opts ...WatchOption) *reloads {
	t.Helper()
	r := &reloads{}
	w, err := Watch(path, r.callback, append([]WatchOption{WithDebounce(20 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	w.StartAsync()
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })
	return r
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "cache:\n  max_age: 10m\n")
	r := startWatch(t, path)

	// When: 修改 max_age
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_age: 3m\n"), 0600))

	// Then: 回调收到新配置
	require.Eventually(t, func() bool {
		cfg, _, _ := r.last()
		return cfg != nil && cfg.Cache.MaxAge == 3*time.Minute
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_InvalidConfigReportsError(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "cache:\n  max_age: 10m\n")
	r := startWatch(t, path)

	require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: etcd\n"), 0600))

	require.Eventually(t, func() bool {
		_, _, nerr := r.last()
		return nerr > 0
	}, 2*time.Second, 10*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.ErrorIs(t, r.errs[0], ErrInvalidConfig)
	assert.Empty(t, r.cfgs)
}

func TestWatch_RenameEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xgeo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_age: 10m\n"), 0600))
	r := startWatch(t, path)

	// 编辑器式原子写入：写临时文件后 rename
	tmp := filepath.Join(dir, ".xgeo.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("cache:\n  max_age: 7m\n"), 0600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		cfg, _, _ := r.last()
		return cfg != nil && cfg.Cache.MaxAge == 7*time.Minute
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "cache:\n  max_age: 10m\n")
	r := startWatch(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0600))
	time.Sleep(100 * time.Millisecond)

	_, n, nerr := r.last()
	assert.Zero(t, n)
	assert.Zero(t, nerr)
}

func TestWatch_Debounce(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "cache:\n  max_age: 10m\n")
	r := startWatch(t, path, WithDebounce(150*time.Millisecond))

	// 防抖窗口内连续写入只触发一次重载
	for _, age := range []string{"1m", "2m", "3m", "4m", "5m"} {
		require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_age: "+age+"\n"), 0600))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		_, n, _ := r.last()
		return n >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	cfg, n, _ := r.last()
	assert.Equal(t, 1, n)
	assert.Equal(t, 5*time.Minute, cfg.Cache.MaxAge)
}

func TestWatch_Errors(t *testing.T) {
	noop := func(*Config, error) {}

	_, err := Watch("", noop)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Watch(filepath.Join(t.TempDir(), "xgeo.ini"), noop)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Watch(filepath.Join(t.TempDir(), "xgeo.yaml"), nil)
	assert.Error(t, err)

	_, err = Watch(filepath.Join(t.TempDir(), "missing", "xgeo.yaml"), noop)
	assert.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "")
	w, err := Watch(path, func(*Config, error) {})
	require.NoError(t, err)

	// 未启动也可以 Stop
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Stop 之后 Start 直接返回
	w.Start()
	w.StartAsync()
}

func TestWatcher_StopInsideCallback(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "")
	done := make(chan struct{})
	var once sync.Once
	var w *Watcher
	var err error
	w, err = Watch(path, func(*Config, error) {
		once.Do(func() {
			assert.NoError(t, w.Stop())
			close(done)
		})
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_age: 1m\n"), 0600))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not called")
	}
}

func TestWatcher_BlockingStart(t *testing.T) {
	path := writeFile(t, "xgeo.yaml", "")
	w, err := Watch(path, func(*Config, error) {})
	require.NoError(t, err)

	returned := make(chan struct{})
	go func() {
		w.Start()
		close(returned)
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.Stop())

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
