package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"mentorship/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestLogger(t *testing.T) {
	useJSON := true

	t.Run("AddsTraceContext", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewWithOptions(logger.Options{Writer: &buf, JSON: &useJSON})

		traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		require.NoError(t, err)
		spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
		require.NoError(t, err)
		ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: traceID,
			SpanID:  spanID,
		}))

		log.InfoContext(ctx, "project completed", "project_id", "p1")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "project completed", record["msg"])
		assert.Equal(t, "p1", record["project_id"])
		assert.Equal(t, traceID.String(), record["trace_id"])
		assert.Equal(t, spanID.String(), record["span_id"])
	})

	t.Run("NoSpanNoTraceAttrs", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewWithOptions(logger.Options{Writer: &buf, JSON: &useJSON})

		log.Info("plain")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.NotContains(t, record, "trace_id")
	})

	t.Run("TextHandlerColorsErrors", func(t *testing.T) {
		var buf bytes.Buffer
		text := false
		log := logger.NewWithOptions(logger.Options{Writer: &buf, JSON: &text})

		log.Error("storage failed")

		assert.Contains(t, buf.String(), "[31mstorage failed")
		assert.Contains(t, buf.String(), "level=ERROR")
	})
}
