// Package telemetry records tool-call and server-connect signals into
// OpenTelemetry. Without a configured SDK the global providers are no-ops.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "speakmcp"

// ToolCallObservation describes one finished tool invocation.
type ToolCallObservation struct {
	CallID   string
	ToolName string
	Owner    string
	Start    time.Time
	Duration time.Duration
	Success  bool
	Error    string
}

// ConnectObservation describes one finished server connection attempt.
type ConnectObservation struct {
	ServerID  string
	Start     time.Time
	Duration  time.Duration
	Success   bool
	ToolCount int
	Error     string
}

// ToolObserver records tool calls and server connects.
type ToolObserver struct {
	tracer trace.Tracer

	calls          metric.Int64Counter
	callLatency    metric.Float64Histogram
	connects       metric.Int64Counter
	connectLatency metric.Float64Histogram
}

// NewToolObserver creates an observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	calls, err := meter.Int64Counter(
		"speakmcp.tool.calls",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	callLatency, err := meter.Float64Histogram(
		"speakmcp.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	connects, err := meter.Int64Counter(
		"speakmcp.server.connects",
		metric.WithDescription("Number of tool server connection attempts"),
	)
	if err != nil {
		return nil, err
	}
	connectLatency, err := meter.Float64Histogram(
		"speakmcp.server.connect.latency",
		metric.WithDescription("Tool server connect and discovery latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:         tracer,
		calls:          calls,
		callLatency:    callLatency,
		connects:       connects,
		connectLatency: connectLatency,
	}, nil
}

// NewGlobalToolObserver binds an observer to the global OpenTelemetry
// providers.
func NewGlobalToolObserver() (*ToolObserver, error) {
	return NewToolObserver(
		otel.GetMeterProvider().Meter(instrumentationName),
		otel.GetTracerProvider().Tracer(instrumentationName),
	)
}

// ObserveToolCall records one invocation result.
func (o *ToolObserver) ObserveToolCall(ctx context.Context, obs ToolCallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", obs.ToolName),
		attribute.String("owner", obs.Owner),
		attribute.Bool("success", obs.Success),
	}

	options := metric.WithAttributes(attrs...)
	o.calls.Add(ctx, 1, options)
	o.callLatency.Record(ctx, obs.Duration.Seconds(), options)

	if obs.CallID != "" {
		attrs = append(attrs, attribute.String("call_id", obs.CallID))
	}
	o.span(ctx, "tool.call", obs.Start, obs.Duration, obs.Success, obs.Error, attrs)
}

// ObserveConnect records one connection attempt.
func (o *ToolObserver) ObserveConnect(ctx context.Context, obs ConnectObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server_id", obs.ServerID),
		attribute.Bool("success", obs.Success),
	}

	options := metric.WithAttributes(attrs...)
	o.connects.Add(ctx, 1, options)
	o.connectLatency.Record(ctx, obs.Duration.Seconds(), options)

	attrs = append(attrs, attribute.Int("tool_count", obs.ToolCount))
	o.span(ctx, "server.connect", obs.Start, obs.Duration, obs.Success, obs.Error, attrs)
}

func (o *ToolObserver) span(ctx context.Context, name string, start time.Time, d time.Duration, success bool, errMsg string, attrs []attribute.KeyValue) {
	if o.tracer == nil {
		return
	}
	if start.IsZero() {
		start = time.Now().Add(-d)
	}
	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	if success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End(trace.WithTimestamp(start.Add(d)))
}
