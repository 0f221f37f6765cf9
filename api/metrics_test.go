package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogSuccess(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "GET /api/tasks")
	metrics.start = metrics.start.Add(-20 * time.Millisecond)
	metrics.ObserveStore(5 * time.Millisecond)
	metrics.SetTasks(3)
	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("expected log entry")
	}
	if entry.Level != log.InfoLevel || entry.Message != "request completed" {
		t.Fatalf("unexpected entry: %s %q", entry.Level, entry.Message)
	}
	if entry.Data["route"] != "GET /api/tasks" || entry.Data["status"] != http.StatusOK || entry.Data["tasks"] != 3 {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total < 20 {
		t.Fatalf("unexpected total_ms: %#v", entry.Data["total_ms"])
	}
	if _, ok := entry.Data["error_stage"]; ok {
		t.Fatalf("error_stage should be absent on success")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /api/tasks" {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if code, ok := attrs["http.response.status_code"].(int64); !ok || code != http.StatusOK {
		t.Fatalf("unexpected status attribute: %#v", attrs["http.response.status_code"])
	}
	if count, ok := attrs["tasks.count"].(int64); !ok || count != 3 {
		t.Fatalf("unexpected tasks.count: %#v", attrs["tasks.count"])
	}
	if span.Status.Code == codes.Error {
		t.Fatalf("span should not be marked as error")
	}
}

func TestRequestMetricsLogError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "POST /api/tasks")
	metrics.SetErrorStage("store")
	boom := errors.New("disk full")
	metrics.Log(http.StatusInternalServerError, boom)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error entry, got %#v", entry)
	}
	if entry.Data["error_stage"] != "store" || entry.Data[log.ErrorKey] != boom {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected span status error, got %v", span.Status.Code)
	}
	if attributesToMap(span.Attributes)["tasks.error_stage"] != "store" {
		t.Fatalf("expected error stage on span")
	}
	if len(span.Events) == 0 {
		t.Fatalf("expected recorded error event")
	}
}

func TestRequestMetricsSeverity(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   log.Level
	}{
		{name: "ok", status: http.StatusCreated, want: log.InfoLevel},
		{name: "client error", status: http.StatusNotFound, want: log.WarnLevel},
		{name: "server error", status: http.StatusInternalServerError, want: log.ErrorLevel},
		{name: "error without status", status: http.StatusOK, err: errors.New("x"), want: log.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			metrics, _ := newRequestMetrics(context.Background(), logger, "r")
			metrics.Log(tt.status, tt.err)
			if got := hook.LastEntry().Level; got != tt.want {
				t.Fatalf("level = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequestMetricsNilSafe(t *testing.T) {
	var metrics *requestMetrics
	metrics.Log(http.StatusOK, nil)
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
