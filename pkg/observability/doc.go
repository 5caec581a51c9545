// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog，支持文件轮转与动态级别
//   - xmetrics: 统一可观测性接口（指标、追踪）与 OpenTelemetry 实现
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 默认 no-op，未配置时不产生开销
package observability
