// Package telemetry connects the engine and bus to OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stateforward/go-hsmbus"
)

const Name = "github.com/stateforward/go-hsmbus"

// Tracer returns the tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(Name)
}

// Trace turns every engine step into a span named "hsm.<step>". Run results
// are recorded as the "result" attribute.
func Trace(tracer trace.Tracer) hsm.Trace {
	return func(ctx context.Context, step string, state string) func(...any) {
		_, span := tracer.Start(ctx, "hsm."+step, trace.WithAttributes(attribute.String("state", state)))
		return func(results ...any) {
			for _, result := range results {
				switch result := result.(type) {
				case hsm.Result:
					span.SetAttributes(attribute.String("result", result.String()))
				case error:
					span.RecordError(result)
					span.SetStatus(codes.Error, result.Error())
				}
			}
			span.End()
		}
	}
}

// SpanRecord is a finished span kept by a Recorder.
type SpanRecord struct {
	Name       string
	Attributes map[string]string
	Status     codes.Code
	Errors     []error
}

// Recorder is an in-memory tracer provider that keeps finished spans.
type Recorder struct {
	trace.TracerProvider
	mu    sync.Mutex
	spans []SpanRecord
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (recorder *Recorder) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{recorder: recorder}
}

// Spans returns the finished spans in the order they ended.
func (recorder *Recorder) Spans() []SpanRecord {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return slices.Clone(recorder.spans)
}

// Names returns the names of the finished spans.
func (recorder *Recorder) Names() []string {
	spans := recorder.Spans()
	names := make([]string, len(spans))
	for i, span := range spans {
		names[i] = span.Name
	}
	return names
}

type recordingTracer struct {
	trace.Tracer
	recorder *Recorder
}

func (tracer *recordingTracer) Start(ctx context.Context, name string, options ...trace.SpanStartOption) (context.Context, trace.Span) {
	config := trace.NewSpanStartConfig(options...)
	span := &recordingSpan{
		recorder: tracer.recorder,
		record:   SpanRecord{Name: name, Attributes: map[string]string{}},
	}
	span.SetAttributes(config.Attributes()...)
	return trace.ContextWithSpan(ctx, span), span
}

type recordingSpan struct {
	trace.Span
	recorder *Recorder
	mu       sync.Mutex
	record   SpanRecord
	ended    bool
}

func (span *recordingSpan) End(options ...trace.SpanEndOption) {
	span.mu.Lock()
	if span.ended {
		span.mu.Unlock()
		return
	}
	span.ended = true
	record := span.record
	span.mu.Unlock()
	span.recorder.mu.Lock()
	span.recorder.spans = append(span.recorder.spans, record)
	span.recorder.mu.Unlock()
}

func (span *recordingSpan) AddEvent(name string, options ...trace.EventOption) {}
func (span *recordingSpan) AddLink(link trace.Link)                            {}
func (span *recordingSpan) IsRecording() bool                                  { return true }
func (span *recordingSpan) SetName(name string)                                { span.record.Name = name }
func (span *recordingSpan) SpanContext() trace.SpanContext                     { return trace.SpanContext{} }
func (span *recordingSpan) TracerProvider() trace.TracerProvider               { return span.recorder }

func (span *recordingSpan) RecordError(err error, options ...trace.EventOption) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.record.Errors = append(span.record.Errors, err)
}

func (span *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	span.mu.Lock()
	defer span.mu.Unlock()
	for _, attr := range kv {
		span.record.Attributes[string(attr.Key)] = attr.Value.Emit()
	}
}

func (span *recordingSpan) SetStatus(code codes.Code, description string) {
	span.mu.Lock()
	defer span.mu.Unlock()
	span.record.Status = code
}

func (record SpanRecord) String() string {
	return fmt.Sprintf("%s%v", record.Name, record.Attributes)
}
