package telemetry_test

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/telemetry"
	"github.com/zfogg/daybook/internal/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attr(span sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestGORMTracingPlugin(t *testing.T) {
	rec := recordSpans(t)
	db := testutil.NewDB(t)
	require.NoError(t, db.Use(telemetry.GORMTracingPlugin()))
	user := testutil.CreateUser(t, db, "ada")

	ctx, parent := telemetry.Start(context.Background(), "test.parent")
	var found models.User
	require.NoError(t, db.WithContext(ctx).First(&found, "id = ?", user.ID).Error)
	err := db.WithContext(ctx).First(&found, "id = ?", "missing").Error
	require.Error(t, err)
	parent.End()

	var selects []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "db.select" {
			selects = append(selects, s)
		}
	}
	require.Len(t, selects, 2)
	for _, s := range selects {
		assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
		assert.Equal(t, "sqlite", attr(s, "db.system").AsString())
		assert.Equal(t, "users", attr(s, "db.table").AsString())
		assert.Contains(t, attr(s, "db.statement").AsString(), "SELECT")
		// a lookup miss is not a failure
		assert.NotEqual(t, codes.Error, s.Status().Code)
	}
}

func TestGORMPluginRecordsQueryMetrics(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Use(telemetry.GORMTracingPlugin()))
	user := testutil.CreateUser(t, db, "grace")

	m := metrics.Initialize()
	selects := m.DatabaseQueriesTotal.WithLabelValues("SELECT", "users", "success")
	failures := m.DatabaseQueriesTotal.WithLabelValues("SELECT", "users", "error")
	beforeOK, beforeErr := promtest.ToFloat64(selects), promtest.ToFloat64(failures)

	var found models.User
	require.NoError(t, db.First(&found, "id = ?", user.ID).Error)
	require.Error(t, db.First(&found, "id = ?", "missing").Error)

	// the miss is a successful statement
	assert.Equal(t, beforeOK+2, promtest.ToFloat64(selects))
	assert.Equal(t, beforeErr, promtest.ToFloat64(failures))

	updates := m.DatabaseQueriesTotal.WithLabelValues("UPDATE", "users", "success")
	beforeUpdates := promtest.ToFloat64(updates)
	require.NoError(t, db.Model(&found).Update("display_name", "Grace").Error)
	assert.Equal(t, beforeUpdates+1, promtest.ToFloat64(updates))
}

func TestEnd(t *testing.T) {
	rec := recordSpans(t)

	_, ok := telemetry.StartExternal(context.Background(), "s3", "put_object")
	telemetry.End(ok, nil)
	_, bad := telemetry.Start(context.Background(), "export.build")
	telemetry.End(bad, stderrors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "s3.put_object", spans[0].Name())
	assert.Equal(t, "s3", attr(spans[0], "external.service").AsString())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestInstrumentedClientPropagatesTraceContext(t *testing.T) {
	recordSpans(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
	}))
	defer srv.Close()

	ctx, span := telemetry.Start(context.Background(), "test.parent")
	defer span.End()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := telemetry.NewInstrumentedHTTPClient(0).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}
