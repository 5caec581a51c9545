package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/omeyang/xgeo/pkg/config/xconf"
	"github.com/omeyang/xgeo/pkg/geo/xgeocache"
	"github.com/omeyang/xgeo/pkg/geo/xwarm"
	"github.com/omeyang/xgeo/pkg/lifecycle/xrun"
	"github.com/omeyang/xgeo/pkg/observability/xlog"
)

// server 是 serve 命令的常驻进程。
type server struct {
	st         *stack
	logger     *xlog.Logger
	sched      *xwarm.Scheduler
	configPath string
	// levelOverride 非空时热更新不修改日志级别。
	levelOverride string
}

// cmdServe 运行定时预热、索引清理、回写错误消费、统计发布与配置热更新，
// 直到 ctx 取消（SIGINT/SIGTERM），然后在 serve.shutdown_timeout 内优雅关闭。
func cmdServe(ctx context.Context, configPath, levelOverride string, errOut io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg, levelOverride, errOut)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	st, err := newStack(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	sched, err := st.newScheduler()
	if err != nil {
		return joinClose(err, st.Close)
	}

	srv := &server{st: st, logger: logger, sched: sched, configPath: configPath, levelOverride: levelOverride}
	return srv.run(ctx)
}

func (s *server) run(ctx context.Context) error {
	st := s.st
	cfg := st.cfg
	log := st.logger

	g, _ := xrun.NewGroup(ctx, xrun.WithLogger(log), xrun.WithName("xgeoctl"))

	g.Go("scheduler", func(ctx context.Context) error {
		s.sched.Start()
		log.Info("scheduler started", "jobs", len(s.sched.Stats()))
		<-ctx.Done()
		return ctx.Err()
	})
	g.Go("write-back-errors", xrun.Drain(st.cache.WriteBackErrors(), func(e xgeocache.WriteBackError) {
		log.Warn("write-back failed", "job_id", e.JobID, "entities", len(e.IDs), "error", e.Err)
	}))
	g.Go("stats", xrun.Ticker(cfg.Serve.StatsInterval, s.reportStats, func(err error) {
		log.Warn("publish stats failed", "error", err)
	}))
	if s.configPath != "" {
		g.Go("config-watch", s.watchConfig)
	}
	g.Go("shutdown", xrun.OnShutdown(cfg.Serve.ShutdownTimeout, s.shutdown))

	log.Info("xgeoctl serving",
		"version", Version,
		"index", cfg.Index.Backend,
		"primary", cfg.Primary.Backend,
		"regions", len(st.warmer.Regions()),
	)
	return g.Wait()
}

// shutdown 停止调度（取消正在执行的任务），发布最终统计，然后等待回写排空并释放连接。
func (s *server) shutdown(ctx context.Context) error {
	log := s.st.logger
	log.Info("shutting down")
	var errs []error
	if err := s.sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.reportStats(ctx); err != nil {
		log.Warn("publish final stats failed", "error", err)
	}
	errs = append(errs, s.st.Close())
	err := errors.Join(errs...)
	if err != nil {
		log.Error("shutdown finished with errors", "error", err)
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// reportStats 记录统计快照，配置了 redis 时同时发布，供 stats 命令读取。
func (s *server) reportStats(ctx context.Context) error {
	st := s.st
	snap := statsSnapshot{
		Instance: st.instance(),
		At:       time.Now().UTC(),
		Cache:    newCacheStatsView(st.cache.Stats()),
		Jobs:     s.sched.Stats(),
	}
	c := snap.Cache
	st.logger.Info("cache stats",
		slog.Uint64("hits", c.Hits),
		slog.Uint64("misses", c.Misses),
		slog.Float64("hit_ratio", c.HitRatio),
		slog.Uint64("degraded", c.Degraded),
		slog.Int64("pending_write_backs", c.PendingWriteBacks),
		slog.Uint64("populate_failures", c.PopulateFailures),
		slog.Uint64("dropped_errors", c.DroppedErrors),
	)
	if st.redis == nil {
		return nil
	}
	// 快照在两个周期内未刷新即视为实例下线
	return publishStats(ctx, st.redis, st.cfg.Index.KeyPrefix, snap, 2*st.cfg.Serve.StatsInterval)
}

// watchConfig 监视配置文件，热更新最大年龄与日志级别。其余字段需要重启生效。
func (s *server) watchConfig(ctx context.Context) error {
	w, err := xconf.Watch(s.configPath, func(cfg *xconf.Config, err error) {
		if err != nil {
			s.st.logger.Warn("config reload rejected, keeping previous config", "error", err)
			return
		}
		s.applyReload(cfg)
	})
	if err != nil {
		return err
	}
	w.StartAsync()
	<-ctx.Done()
	return errors.Join(ctx.Err(), w.Stop())
}

// applyReload 应用可热更新的配置项。
func (s *server) applyReload(cfg *xconf.Config) {
	log := s.st.logger
	if s.st.maxAge != nil && len(cfg.Cache.MaxAgeByKind) == 0 {
		if prev := s.st.maxAge.MaxAge(); prev != cfg.Cache.MaxAge {
			s.st.maxAge.SetMaxAge(cfg.Cache.MaxAge)
			log.Info("max age updated", "from", prev, "to", cfg.Cache.MaxAge)
		}
	}
	if s.levelOverride == "" {
		level, err := xlog.ParseLevel(cfg.Log.Level)
		if err == nil && level != s.logger.GetLevel() {
			s.logger.SetLevel(level)
			log.Info("log level updated", "level", level.String())
		}
	}
}
