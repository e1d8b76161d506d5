package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestRouter(mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	for _, mw := range mws {
		r.Use(mw)
	}
	r.Get("/status/chats/{chatID}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chi.URLParam(r, "chatID")))
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.Get("/silent", func(w http.ResponseWriter, r *http.Request) {})
	return r
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPrometheus_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestRouter(Prometheus(WithRegistry(reg)))

	serve(h, "/status/chats/a")
	serve(h, "/status/chats/b")
	serve(h, "/boom")
	serve(h, "/silent")

	m := newHTTPMetricsFor(t, reg)
	if got := testutil.ToFloat64(m.WithLabelValues("GET", "/status/chats/{chatID}", "200")); got != 2 {
		t.Errorf("chat route count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Errorf("boom count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WithLabelValues("GET", "/silent", "200")); got != 1 {
		t.Errorf("implicit 200 count = %v, want 1", got)
	}
	n, err := testutil.GatherAndCount(reg, "chatd_http_request_duration_seconds")
	if err != nil || n != 3 {
		t.Errorf("duration series = %d, %v, want 3", n, err)
	}
}

// newHTTPMetricsFor returns the registered request counter by gathering
// it back out of reg.
func newHTTPMetricsFor(t *testing.T, reg *prometheus.Registry) *prometheus.CounterVec {
	t.Helper()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatd",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route and status code",
	}, []string{"method", "route", "code"})
	err := reg.Register(vec)
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		t.Fatalf("requests_total not registered: %v", err)
	}
	return are.ExistingCollector.(*prometheus.CounterVec)
}

func TestPrometheus_UnmatchedRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestRouter(Prometheus(WithRegistry(reg), WithNamespace("x"), WithSubsystem("y")))
	serve(h, "/nope")

	expected := `
# HELP x_y_requests_total HTTP requests served, by route and status code
# TYPE x_y_requests_total counter
x_y_requests_total{code="404",method="GET",route="unmatched"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "x_y_requests_total"); err != nil {
		t.Fatal(err)
	}
}

func TestPrometheus_ConstLabelsAndBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestRouter(Prometheus(
		WithRegistry(reg),
		WithConstLabels(prometheus.Labels{"instance": "t"}),
		WithBuckets([]float64{1}),
	))
	serve(h, "/silent")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "chatd_http_request_duration_seconds" {
			continue
		}
		metric := mf.GetMetric()[0]
		if got := len(metric.GetHistogram().GetBucket()); got != 1 {
			t.Errorf("buckets = %d, want 1", got)
		}
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == "instance" && lp.GetValue() == "t" {
				found = true
			}
		}
		if !found {
			t.Error("const label missing")
		}
		return
	}
	t.Fatal("duration histogram not gathered")
}

// recordingProvider hands out spans that remember what was set on them.
type recordingProvider struct {
	trace.TracerProvider

	mu    sync.Mutex
	spans []*recordingSpan
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{TracerProvider: noop.NewTracerProvider()}
}

func (p *recordingProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{Tracer: p.TracerProvider.Tracer(name, opts...), p: p}
}

type recordingTracer struct {
	trace.Tracer
	p *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, inner := t.Tracer.Start(ctx, name, opts...)
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{Span: inner, name: name, kind: cfg.SpanKind(), attrs: map[attribute.Key]attribute.Value{}}
	for _, kv := range cfg.Attributes() {
		s.attrs[kv.Key] = kv.Value
	}
	t.p.mu.Lock()
	t.p.spans = append(t.p.spans, s)
	t.p.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	trace.Span

	name   string
	kind   trace.SpanKind
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	ended  bool
}

func (s *recordingSpan) SetName(name string) { s.name = name }
func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	s.status = code
}
func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}
func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func TestOpenTelemetry_SpanPerRequest(t *testing.T) {
	tp := newRecordingProvider()
	var inHandler trace.Span

	r := chi.NewRouter()
	r.Use(OpenTelemetry(WithTracerProvider(tp), WithTracerName("test")))
	r.Get("/status/chats/{chatID}", func(w http.ResponseWriter, r *http.Request) {
		inHandler = trace.SpanFromContext(r.Context())
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	serve(r, "/status/chats/abc")
	serve(r, "/boom")

	if len(tp.spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(tp.spans))
	}
	s := tp.spans[0]
	if inHandler != trace.Span(s) {
		t.Error("handler did not see the request span")
	}
	if s.name != "HTTP GET /status/chats/{chatID}" {
		t.Errorf("span name = %q", s.name)
	}
	if s.kind != trace.SpanKindServer || !s.ended {
		t.Errorf("span kind = %v, ended = %v", s.kind, s.ended)
	}
	if got := s.attrs["http.target"].AsString(); got != "/status/chats/abc" {
		t.Errorf("http.target = %q", got)
	}
	if got := s.attrs["http.status_code"].AsInt64(); got != 200 {
		t.Errorf("http.status_code = %d", got)
	}
	if s.status == codes.Error {
		t.Error("successful request marked as error")
	}
	if tp.spans[1].status != codes.Error {
		t.Error("5xx request not marked as error")
	}
}

func TestOpenTelemetry_Filter(t *testing.T) {
	tp := newRecordingProvider()
	h := newTestRouter(OpenTelemetry(
		WithTracerProvider(tp),
		WithFilter(func(r *http.Request) bool { return r.URL.Path != "/silent" }),
	))
	serve(h, "/silent")
	serve(h, "/boom")

	if len(tp.spans) != 1 || tp.spans[0].attrs["http.route"].AsString() != "/boom" {
		t.Fatalf("spans = %+v, want only /boom", tp.spans)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newTestRouter(Logger(logger))

	serve(h, "/status/chats/x")
	serve(h, "/boom")

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "level=DEBUG") || !strings.Contains(lines[0], "path=/status/chats/x") || !strings.Contains(lines[0], "status=200") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "status=500") {
		t.Errorf("second line = %q", lines[1])
	}
}
