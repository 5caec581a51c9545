// Package xmetrics 提供地理检索缓存层统一的观测接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span/Attr 接口，默认实现基于 OpenTelemetry。
// 未配置时使用 NoopObserver，不产生任何开销。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xgeoredis",
//		Operation: "radius_query",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
//   - xgeo.operation.total：操作次数
//   - xgeo.operation.duration：操作耗时（秒），默认桶针对亚毫秒级缓存命中细分
//   - xgeo.operation.results：单次操作返回或写入的实体数，来自 End 时的 AttrResults
//
// 指标维度：component / operation / status，以及 End 时附加的 AttrOutcome
// （协调器写入 hit / miss / degraded / bypass）和 AttrSource。
// 其余属性只进入 trace，可用 WithMetricAttrs 调整白名单。
package xmetrics
