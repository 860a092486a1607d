package log

import (
	"context"
	"errors"
	"testing"

	"smartdoc-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_RejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(config.LogConfig{Level: "loud"}))
}

func TestReplaceAndRestore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := Replace(zap.New(core))

	Infof("[Test] 文档 %d 已处理", 7)
	Error("[Test] 失败", errors.New("boom"))
	restore()
	Info("after restore")

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "[Test] 文档 7 已处理", entries[0].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestCtx_AddsTraceFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	defer Replace(zap.New(core))()

	Ctx(context.Background()).Info("no span")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	Ctx(trace.ContextWithSpanContext(context.Background(), sc)).Info("with span")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[1].ContextMap()["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entries[1].ContextMap()["span_id"])
}
