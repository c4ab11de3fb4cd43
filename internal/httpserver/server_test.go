package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"feedforwarder/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", reg, logger), m
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("OK", rec.Body.String()); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(t)
	m.CycleFinished(metrics.CycleCompleted, 0)
	m.ArticleProcessed("delivered")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`feedforwarder_poller_cycles_total{result="completed"} 1`,
		`feedforwarder_delivery_articles_total{outcome="delivered"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestWebhookRoute(t *testing.T) {
	tests := []struct {
		name       string
		register   bool
		method     string
		wantStatus int
		wantCalls  int
	}{
		{name: "not registered", method: http.MethodPost, wantStatus: http.StatusNotFound},
		{name: "post", register: true, method: http.MethodPost, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "get is rejected", register: true, method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			calls := 0
			if tt.register {
				s.HandleWebhook("/webhook", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					calls++
					w.WriteHeader(http.StatusOK)
				}))
			}

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, "/webhook", strings.NewReader("{}")))

			if diff := cmp.Diff(tt.wantStatus, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCalls, calls); diff != "" {
				t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatusWriterRecordsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	w.WriteHeader(http.StatusTeapot)

	if diff := cmp.Diff(http.StatusTeapot, w.status); diff != "" {
		t.Errorf("recorded status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(http.StatusTeapot, rec.Code); diff != "" {
		t.Errorf("written status mismatch (-want +got):\n%s", diff)
	}
}
