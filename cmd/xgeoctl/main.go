// xgeoctl 是 xgeo 缓存层的运维命令行工具。
//
// 用法:
//
//	xgeoctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径（.yaml/.yml/.json），为空时使用内置默认配置
//	-t, --timeout  单次命令超时时间 (默认: 30s)
//	    --log-level 覆盖配置文件中的日志级别
//
// 命令:
//
//	query        在指定中心与半径内检索实体（先查缓存，未命中回源）
//	warm         预热全部或指定区域
//	invalidate   从缓存删除指定实体
//	prune        清理缓存中已过期的条目
//	stats        查看各 serve 实例发布的统计快照
//	serve        常驻运行：定时预热、定时清理、配置热更新、统计发布
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误
//
// 示例:
//
//	xgeoctl -c xgeo.yaml query --lat 41.9028 --lon 12.4964 --radius 2 --unit km \
//	    --eq cuisine=italian --min rating=4 --limit 10
//	xgeoctl -c xgeo.yaml warm rome milan
//	xgeoctl -c xgeo.yaml invalidate rest-42
//	xgeoctl -c xgeo.yaml serve
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// createApp 创建 CLI 应用。out 为命令结果输出，errOut 为错误与默认日志输出。
func createApp(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "xgeoctl",
		Usage:   "xgeo 缓存层运维工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
				Sources: cli.EnvVars("XGEO_CONFIG"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "单次命令超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "覆盖日志级别 (debug/info/warn/error)",
			},
		},
		Commands:       createCommands(out, errOut),
		Writer:         out,
		ErrWriter:      errOut,
		DefaultCommand: "help",
		Authors:        []any{"XGeo Team"},
		// 由 run() 统一处理退出码，禁止 urfave/cli 直接调用 os.Exit
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(errOut, err)
			}
		},
	}
}

func run(args []string, out, errOut io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp(out, errOut).Run(ctx, args); err != nil {
		return exitCode(err, errOut)
	}
	return 0
}

// exitCode 把错误映射为退出码并输出错误信息。
func exitCode(err error, errOut io.Writer) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(errOut, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		fmt.Fprintf(errOut, "参数错误: %v\n", err)
		return 2
	}
	fmt.Fprintf(errOut, "错误: %v\n", err)
	return 1
}
