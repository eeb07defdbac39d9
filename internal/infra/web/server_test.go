package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type stubStats struct {
	n   int
	err error
}

func (s stubStats) PendingCount(context.Context) (int, error) { return s.n, s.err }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(stats QueueStats, db, cache Pinger) *Server {
	log := zerolog.Nop()
	return NewServer(0, stats, db, cache, &log)
}

func TestHealthAlwaysOK(t *testing.T) {
	s := newTestServer(stubStats{}, nil, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}

func TestReadyReflectsBackends(t *testing.T) {
	s := newTestServer(stubStats{}, stubPinger{}, stubPinger{})
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}

	s = newTestServer(stubStats{}, stubPinger{err: errors.New("down")}, stubPinger{})
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with dead db = %d, want 503", rec.Code)
	}
}

func TestStatusReportsPendingDepth(t *testing.T) {
	s := newTestServer(stubStats{n: 7}, nil, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statusz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("statusz = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"pending":7`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
