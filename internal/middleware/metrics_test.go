package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/apprentice-tracker/internal/metrics"
)

type recordedRequest struct {
	method string
	route  string
	status int
}

type mockMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *mockMetrics) RecordHTTPRequest(method, route string, statusCode int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method: method, route: route, status: statusCode})
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	mc := &mockMetrics{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(mc))
	r.Get("/apprentices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"a1", "b2"} {
		req := httptest.NewRequest(http.MethodGet, "/apprentices/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(mc.requests) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(mc.requests))
	}
	for _, got := range mc.requests {
		if got.route != "/apprentices/{id}" {
			t.Errorf("route = %q, want %q", got.route, "/apprentices/{id}")
		}
		if got.status != http.StatusOK {
			t.Errorf("status = %d, want 200", got.status)
		}
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	mc := &mockMetrics{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(mc))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if len(mc.requests) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(mc.requests))
	}
	if mc.requests[0].route != unmatchedRoute {
		t.Errorf("route = %q, want %q", mc.requests[0].route, unmatchedRoute)
	}
	if mc.requests[0].status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", mc.requests[0].status)
	}
}
