package retry

import (
	"errors"
	"testing"
	"time"
)

func fastOpts(attempts int) Options {
	return Options{Attempts: attempts, Base: time.Millisecond, MaxSleep: 5 * time.Millisecond}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, fastOpts(3))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("upstream down")
	calls := 0
	err := Do(func() error {
		calls++
		return wantErr
	}, fastOpts(3))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly 3", calls)
	}
}

func TestDoRecoversMidway(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, fastOpts(3))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoMinimumOneAttempt(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errors.New("boom")
	}, Options{Attempts: 0})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDefaults(t *testing.T) {
	opts := Defaults()
	if opts.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", opts.Attempts)
	}
	if opts.Base != 250*time.Millisecond {
		t.Errorf("base = %v, want 250ms", opts.Base)
	}
	if opts.MaxSleep != 4*time.Second {
		t.Errorf("max sleep = %v, want 4s", opts.MaxSleep)
	}
}
