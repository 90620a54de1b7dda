package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/echotrails/native/internal/logctx"
)

func newEnabled(t *testing.T) *Telemetry {
	t.Helper()

	tel, err := New(context.Background(), Config{Enabled: true, ServiceName: "test", ServiceVersion: "dev"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	return tel
}

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	return rec.Body.String()
}

func TestDisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, tel.HTTPClient())
	assert.NotPanics(t, func() {
		tel.RecordTransfer(DirectionDownload, "success", time.Second)
		tel.RecordTransferBytes(DirectionUpload, 10)
		tel.RecordCacheLookup("hit")
	})

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	require.NoError(t, tel.InstrumentTransfer(context.Background(), DirectionDownload, func(context.Context) error {
		called = true

		return nil
	}))
	assert.True(t, called)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry

	boom := errors.New("boom")
	err := tel.InstrumentTransfer(context.Background(), DirectionUpload, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NotNil(t, tel.HTTPClient())
	assert.NotNil(t, tel.Tracer())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestInstrumentTransfer_RecordsMetrics(t *testing.T) {
	tel := newEnabled(t)

	require.NoError(t, tel.InstrumentTransfer(context.Background(), DirectionDownload, func(context.Context) error { return nil }))
	require.Error(t, tel.InstrumentTransfer(context.Background(), DirectionUpload, func(context.Context) error { return errors.New("x") }))
	tel.RecordTransferBytes(DirectionDownload, 1024)
	tel.RecordCacheLookup("stale")

	body := scrape(t, tel)
	assert.Contains(t, body, "transfers_total")
	assert.Contains(t, body, `direction="download"`)
	assert.Contains(t, body, `status="error"`)
	assert.Contains(t, body, "transfer_bytes")
	assert.Contains(t, body, `result="stale"`)
}

func TestMiddlewareChain(t *testing.T) {
	tel := newEnabled(t)

	var seenID string

	h := RequestID(HTTPLogging(NewHTTPMiddleware(tel).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/commands/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", seenID)
	assert.Contains(t, scrape(t, tel), `status="4xx"`)
}

func TestRequestID_Generated(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRequestID_ReplacesMalformedIDs(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, id := range []string{"has space", "line\nbreak", strings.Repeat("a", 129)} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, id)
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		assert.NotEqual(t, id, got)
		assert.Len(t, got, 36)
	}
}

func TestRequestID_TagsRequestLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logctx.LoggerFromContext(r.Context()).InfoContext(r.Context(), "handling")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logctx.WithLogger(req.Context(), logger))
	req.Header.Set(RequestIDHeader, "req-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-7", entry["request_id"])
}

func TestMiddleware_CommandSpanAndRoute(t *testing.T) {
	tel := newEnabled(t)

	spans := tracetest.NewSpanRecorder()
	tel.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)).Tracer("test")

	cmds := chi.NewRouter()
	cmds.Post("/commands/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r := chi.NewRouter()
	r.Use(RequestID, NewHTTPMiddleware(tel).Middleware)
	r.Mount("/", cmds)

	req := httptest.NewRequest(http.MethodPost, "/commands/download", nil)
	req.Header.Set(RequestIDHeader, "req-9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere/12345", nil))

	ended := spans.Ended()
	require.Len(t, ended, 2)

	cmdSpan := ended[0]
	assert.Equal(t, "command download", cmdSpan.Name())
	assert.Equal(t, codes.Error, cmdSpan.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range cmdSpan.Attributes() {
		attrs[kv.Key] = kv.Value
	}

	assert.Equal(t, "download", attrs["echotrails.command"].AsString())
	assert.Equal(t, "req-9", attrs["http.request_id"].AsString())
	assert.Equal(t, "/commands/{name}", attrs["http.route"].AsString())
	assert.EqualValues(t, http.StatusBadGateway, attrs["http.status_code"].AsInt64())

	assert.Equal(t, "http GET", ended[1].Name())

	body := scrape(t, tel)
	assert.Contains(t, body, `path="/commands/{name}"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "12345")
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "download", CommandName("/commands/download"))
	assert.Equal(t, "save_to_pictures", CommandName("/commands/save_to_pictures"))
	assert.Empty(t, CommandName("/commands/"))
	assert.Empty(t, CommandName("/commands/a/b"))
	assert.Empty(t, CommandName("/transfers"))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(502))
	assert.Equal(t, "1xx", statusClass(101))
	assert.Equal(t, "unknown", statusClass(0))
}
