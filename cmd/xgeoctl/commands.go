package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xgeo/pkg/geo/xgeo"
)

// usageError 表示参数错误，映射为退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// cliUsageMarkers 是 urfave/cli 参数错误信息的特征片段。
var cliUsageMarkers = []string{
	"flag provided but not defined",
	"Required flag",
	"Required flags",
	"invalid value",
	"No help topic for",
}

// isCLIUsageError 判断错误是否由 CLI 框架的参数解析产生。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, m := range cliUsageMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// 创建所有子命令。
func createCommands(out, errOut io.Writer) []*cli.Command {
	return []*cli.Command{
		createQueryCommand(out, errOut),
		createWarmCommand(out, errOut),
		createInvalidateCommand(out, errOut),
		createPruneCommand(out, errOut),
		createStatsCommand(out, errOut),
		createServeCommand(errOut),
	}
}

func createQueryCommand(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "在指定中心与半径内检索实体",
		Flags: []cli.Flag{
			&cli.FloatFlag{Name: "lat", Usage: "中心纬度", Required: true},
			&cli.FloatFlag{Name: "lon", Usage: "中心经度", Required: true},
			&cli.FloatFlag{Name: "radius", Aliases: []string{"r"}, Usage: "检索半径", Required: true},
			&cli.StringFlag{Name: "unit", Aliases: []string{"u"}, Usage: "半径单位 (m/km/mi/ft)", Value: "m"},
			&cli.StringFlag{Name: "result-unit", Usage: "结果距离单位，默认与半径一致"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "结果上限，0 使用配置默认值"},
			&cli.IntFlag{Name: "min-fresh", Usage: "接受缓存命中所需的最少新鲜结果数，0 使用配置值"},
			&cli.StringSliceFlag{Name: "eq", Usage: "等值过滤 attr=value，可重复"},
			&cli.StringSliceFlag{Name: "min", Usage: "下界过滤 attr=number，可重复"},
			&cli.StringSliceFlag{Name: "max", Usage: "上界过滤 attr=number，可重复"},
			&cli.BoolFlag{Name: "bypass", Usage: "跳过缓存直接查询主存储"},
			&cli.BoolFlag{Name: "json", Usage: "以 JSON 输出"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := querySpecFromFlags(cmd)
			if err != nil {
				return err
			}
			return withStack(ctx, cmd, errOut, func(ctx context.Context, st *stack) error {
				return cmdQuery(ctx, st, spec, cmd.Bool("json"), out)
			})
		},
	}
}

func createWarmCommand(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "warm",
		Aliases:   []string{"w"},
		Usage:     "预热配置中的全部区域或指定区域",
		ArgsUsage: "[region...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStack(ctx, cmd, errOut, func(ctx context.Context, st *stack) error {
				return cmdWarm(ctx, st, cmd.Args().Slice(), out)
			})
		},
	}
}

func createInvalidateCommand(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Aliases:   []string{"inv"},
		Usage:     "从缓存删除实体，下一次查询将回源",
		ArgsUsage: "<id...>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return usagef("invalidate 需要至少一个实体 ID")
			}
			return withStack(ctx, cmd, errOut, func(ctx context.Context, st *stack) error {
				return cmdInvalidate(ctx, st, ids, out)
			})
		},
	}
}

func createPruneCommand(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "清理缓存中已过期的条目",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStack(ctx, cmd, errOut, func(ctx context.Context, st *stack) error {
				return cmdPrune(ctx, st, out)
			})
		},
	}
}

func createStatsCommand(out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "查看各 serve 实例发布的统计快照（需要 redis）",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "以 JSON 输出"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStack(ctx, cmd, errOut, func(ctx context.Context, st *stack) error {
				return cmdStats(ctx, st, cmd.Bool("json"), out)
			})
		},
	}
}

func createServeCommand(errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "常驻运行定时预热、索引清理、配置热更新与统计发布",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdServe(ctx, cmd.String("config"), cmd.String("log-level"), errOut)
		},
	}
}

// withStack 加载配置并组装组件，在命令超时内执行 fn，结束后释放资源。
func withStack(ctx context.Context, cmd *cli.Command, errOut io.Writer, fn func(ctx context.Context, st *stack) error) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg, cmd.String("log-level"), errOut)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	st, err := newStack(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	return joinClose(fn(ctx, st), st.Close)
}

// querySpecFromFlags 解析 query 命令参数。
func querySpecFromFlags(cmd *cli.Command) (xgeo.QuerySpec, error) {
	center, err := xgeo.NewGeoKey(cmd.Float("lat"), cmd.Float("lon"))
	if err != nil {
		return xgeo.QuerySpec{}, usagef("%v", err)
	}
	unit, err := xgeo.ParseUnit(cmd.String("unit"))
	if err != nil {
		return xgeo.QuerySpec{}, usagef("%v", err)
	}
	var resultUnit xgeo.Unit
	if s := cmd.String("result-unit"); s != "" {
		if resultUnit, err = xgeo.ParseUnit(s); err != nil {
			return xgeo.QuerySpec{}, usagef("%v", err)
		}
	}
	filters, err := parseFilters(cmd.StringSlice("eq"), cmd.StringSlice("min"), cmd.StringSlice("max"))
	if err != nil {
		return xgeo.QuerySpec{}, err
	}
	return xgeo.QuerySpec{
		Center:      center,
		Radius:      xgeo.Distance{Value: cmd.Float("radius"), Unit: unit},
		Unit:        resultUnit,
		Filters:     filters,
		Limit:       int(cmd.Int("limit")),
		MinFresh:    int(cmd.Int("min-fresh")),
		BypassCache: cmd.Bool("bypass"),
	}, nil
}

// parseFilters 解析 attr=value 形式的过滤参数。
// 等值参数的值依次尝试布尔、数值，否则按字符串处理。
func parseFilters(eqs, mins, maxs []string) ([]xgeo.Filter, error) {
	filters := make([]xgeo.Filter, 0, len(eqs)+len(mins)+len(maxs))
	for _, s := range eqs {
		attr, raw, err := splitAssignment(s)
		if err != nil {
			return nil, err
		}
		filters = append(filters, xgeo.Eq(attr, parseScalar(raw)))
	}
	bounds := []struct {
		args  []string
		build func(attr string, v float64) xgeo.Filter
	}{
		{mins, xgeo.AtLeast},
		{maxs, xgeo.AtMost},
	}
	for _, b := range bounds {
		for _, s := range b.args {
			attr, raw, err := splitAssignment(s)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, usagef("过滤条件 %q 需要数值", s)
			}
			filters = append(filters, b.build(attr, v))
		}
	}
	return filters, nil
}

func splitAssignment(s string) (string, string, error) {
	attr, raw, ok := strings.Cut(s, "=")
	attr = strings.TrimSpace(attr)
	if !ok || attr == "" {
		return "", "", usagef("过滤条件 %q 应为 attr=value", s)
	}
	return attr, strings.TrimSpace(raw), nil
}

func parseScalar(raw string) xgeo.Value {
	if b, err := strconv.ParseBool(raw); err == nil {
		return xgeo.BoolValue(b)
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return xgeo.NumberValue(n)
	}
	return xgeo.StringValue(raw)
}

// =============================================================================
// 输出
// =============================================================================

// hitView 是 query 命令的 JSON 输出格式。
type hitView struct {
	ID         string            `json:"id"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Kind       string            `json:"kind,omitempty"`
	Distance   float64           `json:"distance"`
	Source     string            `json:"source"`
	AgeSeconds float64           `json:"age_seconds"`
	Stale      bool              `json:"stale,omitempty"`
	Attrs      map[string]any    `json:"attrs,omitempty"`
	Props      map[string]string `json:"props,omitempty"`
}

type resultView struct {
	Source   string    `json:"source"`
	Unit     string    `json:"unit"`
	Degraded bool      `json:"degraded,omitempty"`
	Hits     []hitView `json:"hits"`
}

func newResultView(res *xgeo.QueryResult) resultView {
	v := resultView{
		Source:   res.Source.String(),
		Unit:     string(res.Unit),
		Degraded: res.Degraded,
		Hits:     make([]hitView, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hv := hitView{
			ID:         h.Entity.ID,
			Lat:        h.Entity.Key.Lat(),
			Lon:        h.Entity.Key.Lon(),
			Kind:       h.Entity.Kind,
			Distance:   h.Distance,
			Source:     h.Source.String(),
			AgeSeconds: h.AgeSeconds(),
			Stale:      h.Stale,
			Props:      h.Entity.Props,
		}
		if len(h.Entity.Attrs) > 0 {
			hv.Attrs = make(map[string]any, len(h.Entity.Attrs))
			for k, a := range h.Entity.Attrs {
				hv.Attrs[k] = a.Any()
			}
		}
		v.Hits = append(v.Hits, hv)
	}
	return v
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
