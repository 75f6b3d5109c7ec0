package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	mw := TimeoutMiddleware(&TimeoutConfig{HandlerTimeout: 50 * time.Millisecond})
	var hasDeadline bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/plants/map", nil))
	if !hasDeadline {
		t.Fatal("expected request context to carry a deadline")
	}
}

func TestTimeoutMiddleware_NoDeadlineWhenDisabled(t *testing.T) {
	mw := TimeoutMiddleware(&TimeoutConfig{HandlerTimeout: 0})
	var hasDeadline bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/fast", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want=%d", rr.Code, http.StatusAccepted)
	}
	if hasDeadline {
		t.Fatal("expected no deadline when HandlerTimeout is 0")
	}
}

func TestTimeoutMiddleware_SkipsWebSocketUpgrade(t *testing.T) {
	mw := TimeoutMiddleware(&TimeoutConfig{HandlerTimeout: time.Second})
	var hasDeadline bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	req.Header.Set("Connection", "keep-alive, Upgrade")
	req.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if hasDeadline {
		t.Fatal("websocket upgrade must not get a handler deadline")
	}
}

func TestTimeoutConfig_Apply(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	srv := &http.Server{}
	cfg.Apply(srv)
	if srv.ReadTimeout != cfg.ReadTimeout || srv.WriteTimeout != cfg.WriteTimeout || srv.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts not applied: %+v", srv)
	}
}
