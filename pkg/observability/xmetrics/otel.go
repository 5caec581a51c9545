package xmetrics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultInstrumentationName = "github.com/omeyang/xgeo/xmetrics"

	metricOperationTotal    = "xgeo.operation.total"
	metricOperationDuration = "xgeo.operation.duration"
	metricOperationResults  = "xgeo.operation.results"
)

// DefaultDurationBuckets 是耗时直方图的默认桶边界（秒）。
// 缓存命中通常在 1ms 内，回源在 10ms~1s 之间。
var DefaultDurationBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// DefaultResultBuckets 是单次操作结果数直方图的默认桶边界。
var DefaultResultBuckets = []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}

// DefaultMetricAttrs 是默认提升为指标维度的结果属性。
var DefaultMetricAttrs = []string{AttrOutcome, AttrSource}

type otelConfig struct {
	name          string
	tracers       trace.TracerProvider
	meters        metric.MeterProvider
	buckets       []float64
	resultBuckets []float64
	metricAttrs   []string
}

// Option 定义 OTel Observer 的配置选项。
type Option func(*otelConfig)

// WithInstrumentationName 设置 OTel instrumentation 名称。
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithTracerProvider 设置 TracerProvider。
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.tracers = provider
		}
	}
}

// WithMeterProvider 设置 MeterProvider。
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meters = provider
		}
	}
}

// WithDurationBuckets 覆盖耗时直方图的桶边界（秒），必须严格递增。
func WithDurationBuckets(buckets ...float64) Option {
	return func(cfg *otelConfig) { cfg.buckets = buckets }
}

// WithResultBuckets 覆盖结果数直方图的桶边界，必须严格递增。
func WithResultBuckets(buckets ...float64) Option {
	return func(cfg *otelConfig) { cfg.resultBuckets = buckets }
}

// WithMetricAttrs 设置提升为指标维度的结果属性名，替换 DefaultMetricAttrs。
// 只应包含低基数属性。
func WithMetricAttrs(keys ...string) Option {
	return func(cfg *otelConfig) { cfg.metricAttrs = keys }
}

// NewOTelObserver 创建基于 OpenTelemetry 的 Observer。
// 未设置 provider 时使用全局 provider。
//
// 除操作次数与耗时外，End 时带有 AttrResults 的操作会记录到结果数直方图，
// 用于观察半径查询、预热与回写的规模分布。
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := &otelConfig{
		name:          defaultInstrumentationName,
		tracers:       otel.GetTracerProvider(),
		meters:        otel.GetMeterProvider(),
		buckets:       DefaultDurationBuckets,
		resultBuckets: DefaultResultBuckets,
		metricAttrs:   DefaultMetricAttrs,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	for _, b := range [][]float64{cfg.buckets, cfg.resultBuckets} {
		if !strictlyIncreasing(b) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBuckets, b)
		}
	}

	ins, err := newInstruments(cfg.meters.Meter(cfg.name), cfg)
	if err != nil {
		return nil, err
	}
	return &otelObserver{
		tracer:      cfg.tracers.Tracer(cfg.name),
		ins:         ins,
		metricAttrs: slices.Clone(cfg.metricAttrs),
	}, nil
}

type instruments struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
	results  metric.Int64Histogram
}

func newInstruments(meter metric.Meter, cfg *otelConfig) (instruments, error) {
	var ins instruments
	var err error
	ins.total, err = meter.Int64Counter(metricOperationTotal,
		metric.WithDescription("geo cache and store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return ins, fmt.Errorf("%w: %w", ErrCreateCounter, err)
	}
	ins.duration, err = meter.Float64Histogram(metricOperationDuration,
		metric.WithDescription("geo cache and store operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.buckets...),
	)
	if err != nil {
		return ins, fmt.Errorf("%w: %w", ErrCreateHistogram, err)
	}
	ins.results, err = meter.Int64Histogram(metricOperationResults,
		metric.WithDescription("entities returned or written per operation"),
		metric.WithUnit("{entity}"),
		metric.WithExplicitBucketBoundaries(cfg.resultBuckets...),
	)
	if err != nil {
		return ins, fmt.Errorf("%w: %w", ErrCreateHistogram, err)
	}
	return ins, nil
}

func strictlyIncreasing(b []float64) bool {
	for i := 1; i < len(b); i++ {
		if b[i] <= b[i-1] {
			return false
		}
	}
	return true
}

type otelObserver struct {
	tracer      trace.Tracer
	ins         instruments
	metricAttrs []string
}

// Start 开始一次观测跨度，span 名为 "<component>.<operation>"。
func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	component := orUnknown(opts.Component)
	operation := orUnknown(opts.Operation)
	base := []attribute.KeyValue{
		attribute.String("component", component),
		attribute.String("operation", operation),
	}

	ctx, span := o.tracer.Start(ctx, component+"."+operation,
		trace.WithSpanKind(mapSpanKind(opts.Kind)),
		trace.WithAttributes(append(slices.Clip(base), attrsToOTel(opts.Attrs)...)...),
	)
	return ctx, &otelSpan{
		span:     span,
		observer: o,
		ctx:      ctx,
		base:     base,
		start:    time.Now(),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

type otelSpan struct {
	span     trace.Span
	observer *otelObserver
	ctx      context.Context
	// base 是 component 与 operation 两个属性，span 与指标共用
	base    []attribute.KeyValue
	start   time.Time
	endOnce sync.Once
}

// End 结束观测并记录结果，多次调用只记录一次。
func (s *otelSpan) End(result Result) {
	if s == nil {
		return
	}
	s.endOnce.Do(func() { s.end(result) })
}

func (s *otelSpan) end(result Result) {
	elapsed := time.Since(s.start).Seconds()
	status := resolveStatus(result)

	if result.Err != nil {
		s.span.RecordError(result.Err)
	}
	switch {
	case status != StatusError:
		s.span.SetStatus(codes.Ok, "")
	case result.Err != nil:
		s.span.SetStatus(codes.Error, result.Err.Error())
	default:
		s.span.SetStatus(codes.Error, "operation failed")
	}
	if extra := attrsToOTel(result.Attrs); len(extra) > 0 {
		s.span.SetAttributes(extra...)
	}
	s.span.End()

	// 请求 context 可能已取消，指标仍需记录
	ctx := context.WithoutCancel(s.ctx)
	attrs := metric.WithAttributes(s.observer.dimensions(s.base, status, result.Attrs)...)
	ins := s.observer.ins
	ins.total.Add(ctx, 1, attrs)
	ins.duration.Record(ctx, elapsed, attrs)
	if n, ok := resultCount(result.Attrs); ok {
		ins.results.Record(ctx, n, attrs)
	}
}

// dimensions 返回指标维度：base、status 以及白名单内的结果属性。
// 实体 ID、坐标等高基数属性只进入 trace。
func (o *otelObserver) dimensions(base []attribute.KeyValue, status Status, extra []Attr) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(base)+1+len(o.metricAttrs))
	attrs = append(attrs, base...)
	attrs = append(attrs, attribute.String("status", string(status)))
	for _, a := range extra {
		if a.Value != nil && slices.Contains(o.metricAttrs, a.Key) {
			attrs = append(attrs, toKeyValue(a))
		}
	}
	return attrs
}

func resultCount(attrs []Attr) (int64, bool) {
	for _, a := range attrs {
		if a.Key != AttrResults {
			continue
		}
		switch v := a.Value.(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		}
	}
	return 0, false
}

func resolveStatus(result Result) Status {
	switch {
	case result.Status != "":
		return result.Status
	case result.Err != nil:
		return StatusError
	default:
		return StatusOK
	}
}

func mapSpanKind(kind Kind) trace.SpanKind {
	switch kind {
	case KindServer:
		return trace.SpanKindServer
	case KindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func attrsToOTel(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	converted := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key != "" && attr.Value != nil {
			converted = append(converted, toKeyValue(attr))
		}
	}
	return converted
}

func toKeyValue(attr Attr) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	case time.Duration:
		return attribute.Int64(attr.Key, v.Nanoseconds())
	default:
		return attribute.String(attr.Key, fmt.Sprint(v))
	}
}
