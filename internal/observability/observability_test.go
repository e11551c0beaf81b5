package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", ExtractCorrelationID(ctx))
	assert.Empty(t, ExtractCorrelationID(context.Background()))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "kinship-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	span, ctx := StartServiceSpan(context.Background(), "svc", "op")
	require.NotNil(t, ctx)
	span.SetError(errors.New("boom"))
	span.End()
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(TracingConfig{ServiceName: "kinship-test", Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

// recordSpans points Tracer at an in-memory recorder for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := Tracer
	Tracer = tp.Tracer("kinship-test")
	t.Cleanup(func() {
		Tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartRelationSpan_CarriesRelationKey(t *testing.T) {
	rec := recordSpans(t)

	span, _ := StartRelationSpan(context.Background(), "Toggle", "post_like", 3, 42)
	span.AddAttributes(RelationStateKey.String("present"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Ledger.Toggle", ended[0].Name())
	attrs := spanAttrs(ended[0])
	assert.Equal(t, "post_like", attrs[RelationKindKey].AsString())
	assert.Equal(t, int64(3), attrs[RelationActorKey].AsInt64())
	assert.Equal(t, int64(42), attrs[RelationTargetKey].AsInt64())
	assert.Equal(t, "present", attrs[RelationStateKey].AsString())
	assert.Equal(t, "Ledger", attrs["service.name"].AsString())
}

func TestStartResourceSpan_RecordsFailure(t *testing.T) {
	rec := recordSpans(t)

	span, _ := StartResourceSpan(context.Background(), "PostService", "DeletePost", "Post", 7)
	span.SetError(errors.New("post 7 not found"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	attrs := spanAttrs(ended[0])
	assert.Equal(t, "Post", attrs[ResourceKey].AsString())
	assert.Equal(t, int64(7), attrs[ResourceIDKey].AsInt64())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Events(), 1)
}

func TestRecordBlobOperation(t *testing.T) {
	before := testutil.ToFloat64(BlobOperations.WithLabelValues("memory", "put", "error"))
	RecordBlobOperation("memory", "put", errors.New("x"))
	after := testutil.ToFloat64(BlobOperations.WithLabelValues("memory", "put", "error"))
	assert.Equal(t, before+1, after)
}

func TestTrackQuery(t *testing.T) {
	done := NewDatabaseMetrics().TrackQuery("select", "users")
	done()
	assert.Equal(t, 1, testutil.CollectAndCount(DatabaseQueryLatency))
}
