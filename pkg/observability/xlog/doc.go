// Package xlog 构建 xgeo 进程使用的 *slog.Logger。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后，后续 Set 操作被跳过）：
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString(cfg.Log.Level).
//	    SetFormat(cfg.Log.Format).
//	    SetRotation(xlog.Rotation{Filename: cfg.Log.File}).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
// 各 xgeo 包通过 WithLogger(*slog.Logger) 注入 logger.Logger。
//
// # 动态级别
//
// 派生 logger（With/WithGroup）共享同一个 slog.LevelVar，
// [Logger.SetLevel] 在运行时生效，用于配置热更新。
//
// # 日志轮转
//
// 设置 Rotation.Filename 后输出写入 lumberjack 轮转文件，按大小轮转，
// 按数量与天数清理备份。cleanup 关闭当前文件。
package xlog
