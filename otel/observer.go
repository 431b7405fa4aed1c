package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/mcpchat/core"
)

// Observer records model, tool, connect and health signals into
// OpenTelemetry. Install it with core.SetObserver.
type Observer struct {
	tracer trace.Tracer

	modelCalls   metric.Int64Counter
	modelTokens  metric.Int64Counter
	modelLatency metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolLatency  metric.Float64Histogram
	connects     metric.Int64Counter
	health       metric.Int64Counter
}

// NewObserver creates an observer bound to the provided meter/tracer. A nil
// tracer disables spans.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	modelCalls, err := meter.Int64Counter(
		"mcpchat.model.calls",
		metric.WithDescription("Number of model round-trips"),
	)
	if err != nil {
		return nil, err
	}
	modelTokens, err := meter.Int64Counter(
		"mcpchat.model.tokens",
		metric.WithDescription("Tokens consumed by model calls"),
	)
	if err != nil {
		return nil, err
	}
	modelLatency, err := meter.Float64Histogram(
		"mcpchat.model.latency",
		metric.WithDescription("Model call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter(
		"mcpchat.tool.calls",
		metric.WithDescription("Number of MCP tool calls"),
	)
	if err != nil {
		return nil, err
	}
	toolLatency, err := meter.Float64Histogram(
		"mcpchat.tool.latency",
		metric.WithDescription("MCP tool call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	connects, err := meter.Int64Counter(
		"mcpchat.server.connect.attempts",
		metric.WithDescription("Number of MCP server connection attempts"),
	)
	if err != nil {
		return nil, err
	}
	health, err := meter.Int64Counter(
		"mcpchat.server.health.checks",
		metric.WithDescription("Number of MCP server health checks"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:       tracer,
		modelCalls:   modelCalls,
		modelTokens:  modelTokens,
		modelLatency: modelLatency,
		toolCalls:    toolCalls,
		toolLatency:  toolLatency,
		connects:     connects,
		health:       health,
	}, nil
}

// ObserveModelCall records one model round-trip.
func (o *Observer) ObserveModelCall(observation core.ModelCallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider", observation.Provider),
		attribute.String("model", observation.Model),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.modelCalls.Add(ctx, 1, options)
	o.modelLatency.Record(ctx, seconds(observation.DurationMS), options)
	if observation.InputTokens > 0 {
		o.modelTokens.Add(ctx, int64(observation.InputTokens),
			metric.WithAttributes(append(attrs, attribute.String("direction", "input"))...))
	}
	if observation.OutputTokens > 0 {
		o.modelTokens.Add(ctx, int64(observation.OutputTokens),
			metric.WithAttributes(append(attrs, attribute.String("direction", "output"))...))
	}

	o.span("model.call", observation.DurationMS, observation.ErrorCode, append(attrs,
		attribute.Int("tool_uses", observation.ToolUses),
		attribute.Int("input_tokens", observation.InputTokens),
		attribute.Int("output_tokens", observation.OutputTokens),
	)...)
}

// ObserveToolCall records one tools/call dispatch.
func (o *Observer) ObserveToolCall(observation core.ToolCallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("success", observation.Success),
		attribute.Bool("is_error", observation.IsError),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.toolCalls.Add(ctx, 1, options)
	o.toolLatency.Record(ctx, seconds(observation.DurationMS), options)

	code := observation.ErrorCode
	if code == "" && observation.IsError {
		code = "tool_error"
	}
	o.span("tool.call", observation.DurationMS, code, attrs...)
}

// ObserveConnect records one connection attempt.
func (o *Observer) ObserveConnect(observation core.ConnectObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.Int("attempt", observation.Attempt),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}
	o.connects.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	o.span("server.connect", observation.DurationMS, observation.ErrorCode, attrs...)
}

// ObserveHealth records one background ping.
func (o *Observer) ObserveHealth(observation core.HealthObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}
	o.health.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	o.span("server.health.check", observation.DurationMS, observation.ErrorCode, attrs...)
}

// span emits a span covering the observed duration, ending now.
func (o *Observer) span(name string, durationMS int64, errorCode string, attrs ...attribute.KeyValue) {
	if o.tracer == nil {
		return
	}
	end := time.Now()
	start := end.Add(-time.Duration(durationMS) * time.Millisecond)
	_, span := o.tracer.Start(context.Background(), name,
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(start),
	)
	if errorCode != "" {
		span.SetStatus(codes.Error, errorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

func seconds(durationMS int64) float64 {
	return (time.Duration(durationMS) * time.Millisecond).Seconds()
}

var _ core.Observer = (*Observer)(nil)
