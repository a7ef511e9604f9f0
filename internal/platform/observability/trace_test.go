package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type capturingSpan struct {
	trace.Span
	recording bool
	attrs     []attribute.KeyValue
}

func (s *capturingSpan) IsRecording() bool { return s.recording }

func (s *capturingSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.attrs = append(s.attrs, kv...)
}

func spanContext(span trace.Span) context.Context {
	return trace.ContextWithSpan(context.Background(), span)
}

func TestAnnotateOrderSpan(t *testing.T) {
	span := &capturingSpan{Span: trace.SpanFromContext(context.Background()), recording: true}

	AnnotateOrderSpan(spanContext(span), "caravan.example.com", "5551001")

	if len(span.attrs) != 2 {
		t.Fatalf("attributes %v, want store and order", span.attrs)
	}
	if string(span.attrs[0].Key) != attrStoreDomain || span.attrs[0].Value.AsString() != "caravan.example.com" {
		t.Fatalf("store attribute %v", span.attrs[0])
	}
	if string(span.attrs[1].Key) != attrOriginOrderID || span.attrs[1].Value.AsString() != "5551001" {
		t.Fatalf("order attribute %v", span.attrs[1])
	}
}

func TestAnnotateOrderSpanSkipsEmptyValues(t *testing.T) {
	span := &capturingSpan{Span: trace.SpanFromContext(context.Background()), recording: true}

	AnnotateOrderSpan(spanContext(span), "caravan.example.com", "")

	if len(span.attrs) != 1 || string(span.attrs[0].Key) != attrStoreDomain {
		t.Fatalf("attributes %v, want store only", span.attrs)
	}
}

func TestAnnotateOrderSpanNotRecording(t *testing.T) {
	span := &capturingSpan{Span: trace.SpanFromContext(context.Background())}

	AnnotateOrderSpan(spanContext(span), "caravan.example.com", "5551001")

	if len(span.attrs) != 0 {
		t.Fatalf("attributes %v, want none on a non-recording span", span.attrs)
	}
}

func TestParseCloudTraceContext(t *testing.T) {
	info, spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if info.TraceID != "105445aa7843bc8bf206b12000100000" || !info.Sampled {
		t.Fatalf("trace info %+v", info)
	}
	if !spanCtx.IsRemote() || !spanCtx.IsSampled() {
		t.Fatalf("span context %+v", spanCtx)
	}

	if _, _, ok := parseCloudTraceContext("not-a-header"); ok {
		t.Fatal("malformed header must not parse")
	}
}
