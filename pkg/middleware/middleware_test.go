package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/tracing"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", seen, err)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	incoming := uuid.NewString()
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Fatalf("id = %q, want %q", seen, incoming)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not a uuid\r\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not a uuid\r\n" {
		t.Fatal("malformed incoming id was trusted")
	}
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("late"))
	})
	rec := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}

	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec = httptest.NewRecorder()
	Timeout(time.Second)(fast).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/documents/42/terms/cat", nil))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/documents/{id}/terms/{term}", "404"))
	if got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/search":                   "/api/v1/search",
		"/api/v1/documents/7":              "/api/v1/documents/{id}",
		"/api/v1/documents/7/terms/banana": "/api/v1/documents/{id}/terms/{term}",
		"/":                                "/",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLimiterRefills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLimiter(ctx, 2, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request within the window should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys must not share a bucket")
	}
	now = now.Add(30 * time.Second)
	if !l.Allow("a") {
		t.Fatal("half a window should refill one token")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(NewLimiter(ctx, 1, time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(path, fwd string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if fwd != "" {
			req.Header.Set("X-Forwarded-For", fwd)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do("/api/v1/search", "10.0.0.1, 10.0.0.2"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := do("/api/v1/search", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}
	if code := do("/api/v1/search", "10.0.0.9"); code != http.StatusOK {
		t.Fatalf("other client = %d", code)
	}
	if code := do("/health/ready", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("health probe = %d", code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"https://app.example"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin: %d %v", rec.Code, rec.Header())
	}
}

func TestTracingUsesRequestID(t *testing.T) {
	var traceID string
	h := RequestID(Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = tracing.SpanFromContext(r.Context()).TraceID
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	if traceID == "" || traceID != rec.Header().Get(RequestIDHeader) {
		t.Fatalf("trace id %q, request id %q", traceID, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequireAPIKey(t *testing.T) {
	h := RequireAPIKey([]string{"s3cret", " "})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	tests := []struct {
		name   string
		path   string
		header string
		value  string
		want   int
	}{
		{"missing", "/api/v1/refresh", "", "", http.StatusUnauthorized},
		{"wrong", "/api/v1/refresh", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header", "/api/v1/refresh", "X-API-Key", "s3cret", http.StatusNoContent},
		{"bearer", "/api/v1/refresh", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"health exempt", "/health/live", "", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAPIKeyDisabledWithoutKeys(t *testing.T) {
	h := RequireAPIKey(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}
