package circuit

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(clk *fakeClock) *Breaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		Now:              clk.now,
	})
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	def := DefaultConfig()
	if b.cfg.FailureThreshold != def.FailureThreshold || b.cfg.RecoveryTimeout != def.RecoveryTimeout {
		t.Fatalf("defaults not applied: %+v", b.cfg)
	}
	if b.State() != Closed {
		t.Fatalf("initial state = %s, want closed", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clk)

	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("err = %v, want *OpenError", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
	if openErr.RetryAfter != 30*time.Second {
		t.Fatalf("RetryAfter = %v, want 30s", openErr.RetryAfter)
	}
	if s := b.Stats(); s.Rejected != 1 || s.State != "open" {
		t.Fatalf("stats = %+v", s)
	}
}

func TestBreaker_FailuresOutsideWindowIgnored(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clk)

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	clk.t = clk.t.Add(2 * time.Minute)
	_ = b.Execute(fail)

	if b.State() != Closed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clk)
	for i := 0; i < 3; i++ {
		_ = b.Execute(fail)
	}

	clk.t = clk.t.Add(30 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}

	if err := b.Execute(succeed); err != nil {
		t.Fatalf("half-open call: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("one success should not close, state = %s", b.State())
	}
	_ = b.Execute(succeed)
	if b.State() != Closed {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clk)
	for i := 0; i < 3; i++ {
		_ = b.Execute(fail)
	}
	clk.t = clk.t.Add(time.Minute)

	_ = b.Execute(fail)
	if b.State() != Open {
		t.Fatalf("state = %s, want open", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	b := newTestBreaker(clk)
	for i := 0; i < 3; i++ {
		_ = b.Execute(fail)
	}
	b.Reset()
	if s := b.Stats(); s.State != "closed" || s.Failures != 0 || s.Rejected != 0 {
		t.Fatalf("stats after reset = %+v", s)
	}
}
