package graceful

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNewGracefulShutdown_BasicFields(t *testing.T) {
	g := NewGracefulShutdown(5 * time.Second)
	if g.timeout != 5*time.Second {
		t.Fatalf("expected timeout 5s, got %v", g.timeout)
	}
	if len(g.funcs) != 0 {
		t.Fatalf("expected no shutdown funcs initially")
	}
	if g.Context().Err() != nil {
		t.Fatalf("context should be live before shutdown")
	}
}

func TestGracefulShutdown_RunsFuncsOnceInReverseOrder(t *testing.T) {
	g := NewGracefulShutdown(2 * time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	g.AddShutdownFunc("database", record("database"))
	g.AddShutdownFunc("bridge", record("bridge"))

	if err := g.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	_ = g.Shutdown()

	if len(order) != 2 || order[0] != "bridge" || order[1] != "database" {
		t.Fatalf("unexpected shutdown order: %v", order)
	}
	if g.Context().Err() == nil {
		t.Fatalf("context should be cancelled after shutdown")
	}
	select {
	case <-g.Done():
	default:
		t.Fatalf("Done should be closed")
	}
}

func TestGracefulShutdown_CollectsErrors(t *testing.T) {
	g := NewGracefulShutdown(time.Second)
	boom := errors.New("boom")
	g.AddShutdownFunc("bridge", func(ctx context.Context) error { return boom })
	g.AddShutdownFunc("stream", func(ctx context.Context) error { return nil })

	err := g.Shutdown()
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
}

func TestGracefulShutdown_HTTPServerShutdown(t *testing.T) {
	g := NewGracefulShutdown(2 * time.Second)
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts.Start()
	defer ts.Close()
	g.SetHTTPServer(ts.Config)

	if err := g.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if _, err := http.Get(ts.URL); err == nil {
		t.Fatalf("expected server to refuse requests after shutdown")
	}
}

func TestGracefulShutdown_WithTimeout(t *testing.T) {
	g := NewGracefulShutdown(100 * time.Millisecond)
	ctx, cancel := g.WithTimeout()
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected context to have deadline")
	}
	if time.Until(deadline) <= 0 {
		t.Fatalf("deadline already passed")
	}
}
