package breaker

import (
	"errors"
	"testing"
	"time"
)

func testSettings() Settings {
	return Settings{
		FailureThreshold: 3,
		RecoveryTimeout:  100 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b := New("llm", testSettings())

	for i := 0; i < 3; i++ {
		if !b.CanExecute() {
			t.Fatalf("call %d: expected closed breaker to admit", i)
		}
		b.RecordFailure()
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", got)
	}
	if b.CanExecute() {
		t.Fatalf("expected open breaker to deny calls")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("llm", testSettings())

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if got := b.Failures(); got != 0 {
		t.Fatalf("expected failure count reset on success, got %d", got)
	}

	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed after 2 failures post-reset, got %v", got)
	}
}

func TestBreaker_OpenRecoversThroughHalfOpen(t *testing.T) {
	b := New("llm", testSettings())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.CanExecute() {
		t.Fatalf("expected open breaker to deny")
	}

	time.Sleep(110 * time.Millisecond)

	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("expected half_open after recovery timeout, got %v", got)
	}
	if !b.CanExecute() {
		t.Fatalf("expected half_open breaker to admit a probe")
	}
	b.RecordSuccess()
	if !b.CanExecute() {
		t.Fatalf("expected half_open breaker to admit second probe")
	}
	b.RecordSuccess()

	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed after %d half_open successes, got %v", 2, got)
	}

	// Counting restarts from zero once closed again.
	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed with failures below threshold, got %v", got)
	}
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected reopen at threshold, got %v", got)
	}
}

// Outcome recording after the recovery window must commit the half_open
// transition itself; callers that reach RecordSuccess through an already
// admitted call never re-check CanExecute.
func TestBreaker_RecordingAloneCommitsHalfOpen(t *testing.T) {
	b := New("llm", testSettings())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", got)
	}
	if b.CanExecute() {
		t.Fatalf("expected open breaker to deny")
	}

	time.Sleep(110 * time.Millisecond)

	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("expected half_open after recovery timeout, got %v", got)
	}
	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected two half_open successes to close, got %v", got)
	}

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected failures after close to reopen at threshold, got %v", got)
	}
}

func TestBreaker_PostWindowFailureRestartsOpenWindow(t *testing.T) {
	b := New("llm", testSettings())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(110 * time.Millisecond)

	// The elapsed window makes the breaker half_open; a bare failure
	// must reopen it with a fresh openedAt stamp.
	b.RecordFailure()

	if got := b.State(); got != StateOpen {
		t.Fatalf("expected reopen from elapsed-window failure, got %v", got)
	}
	if b.CanExecute() {
		t.Fatalf("expected freshly reopened breaker to deny")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("llm", testSettings())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(110 * time.Millisecond)

	if !b.CanExecute() {
		t.Fatalf("expected half_open probe admission")
	}
	b.RecordFailure()

	if got := b.State(); got != StateOpen {
		t.Fatalf("expected reopen on half_open failure, got %v", got)
	}
	if b.CanExecute() {
		t.Fatalf("expected reopened breaker to deny")
	}
}

func TestBreaker_HalfOpenAdmitsAtMostMaxCalls(t *testing.T) {
	b := New("llm", testSettings())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(110 * time.Millisecond)

	if !b.CanExecute() {
		t.Fatalf("expected first probe admitted")
	}
	if !b.CanExecute() {
		t.Fatalf("expected second probe admitted")
	}
	if b.CanExecute() {
		t.Fatalf("expected third probe denied at half_open cap")
	}
}

func TestBreaker_CallRecordsOutcome(t *testing.T) {
	b := New("llm", testSettings())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Call(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected fn error passthrough, got %v", err)
		}
	}

	err := b.Call(func() error {
		t.Fatalf("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestDoOr_FallbackWhenOpen(t *testing.T) {
	b := New("llm", testSettings())
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	got, err := DoOr(b, "fallback", func() (string, error) {
		t.Fatalf("fn must not run while open")
		return "", nil
	})
	if err != nil {
		t.Fatalf("expected nil error with fallback, got %v", err)
	}
	if got != "fallback" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestRegistry_FirstSettingsWin(t *testing.T) {
	r := NewRegistry()

	a := r.GetOrCreate("vision", Settings{FailureThreshold: 2, RecoveryTimeout: time.Second, HalfOpenMaxCalls: 1})
	b := r.GetOrCreate("vision", Settings{FailureThreshold: 99, RecoveryTimeout: time.Hour, HalfOpenMaxCalls: 9})

	if a != b {
		t.Fatalf("expected the same breaker instance for the same name")
	}

	a.RecordFailure()
	a.RecordFailure()
	if got := a.State(); got != StateOpen {
		t.Fatalf("expected original threshold of 2 to apply, got state %v", got)
	}
}

func TestRegistry_ResetAllCloses(t *testing.T) {
	r := NewRegistry()
	b := r.GetOrCreate("vision", Settings{FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMaxCalls: 1})
	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open, got %v", got)
	}

	r.ResetAll()
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed after reset, got %v", got)
	}
}

func TestDefaultRegistry_ResetForTeardown(t *testing.T) {
	t.Cleanup(Reset)

	b := Get("teardown", Settings{FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMaxCalls: 1})
	b.RecordFailure()

	Reset()

	if _, ok := Lookup("teardown"); ok {
		t.Fatalf("expected empty registry after Reset")
	}
}
