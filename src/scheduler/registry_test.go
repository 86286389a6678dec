package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func statsFor(t *testing.T, registry *Registry, name string) RunStats {
	t.Helper()
	for _, s := range registry.Stats() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("job %s not in stats", name)
	return RunStats{}
}

func TestRegisterValidation(t *testing.T) {
	registry := NewRegistry()
	noop := func(context.Context) error { return nil }

	if err := registry.Register("tick", time.Second, noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Register("tick", time.Second, noop); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register("bad", 0, noop); err == nil {
		t.Fatalf("expected non-positive interval to fail")
	}
}

func TestExecuteNowRecordsStats(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	var calls atomic.Int32
	boom := errors.New("downstream unavailable")
	if err := registry.Register("flaky", time.Minute, func(context.Context) error {
		if calls.Add(1) == 1 {
			return boom
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := registry.ExecuteNow(ctx, "flaky"); !errors.Is(err, boom) {
		t.Fatalf("expected the job error back, got %v", err)
	}
	if err := registry.ExecuteNow(ctx, "flaky"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := statsFor(t, registry, "flaky")
	if s.Runs != 2 || s.Failures != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.SuccessRatePct != 50 {
		t.Fatalf("expected 50%% success rate, got %v", s.SuccessRatePct)
	}
	if s.LastError != "" {
		t.Fatalf("expected last error cleared after a success, got %q", s.LastError)
	}
	if s.LastRun == nil {
		t.Fatalf("expected last run recorded")
	}

	if err := registry.ExecuteNow(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unregistered job")
	}
}

func TestPausedJobSkipsRuns(t *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	if err := registry.Register("tick", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := registry.Pause("tick"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registry.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("expected no runs while paused, got %d", n)
	}

	// ExecuteNow ignores the pause.
	if err := registry.ExecuteNow(ctx, "tick"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected exactly the manual run, got %d", n)
	}

	if err := registry.Resume("tick"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected ticker runs after resume")
	}

	cancel()
	registry.Wait()
}

func TestDisableStopsTicker(t *testing.T) {
	registry := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	if err := registry.Register("tick", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registry.Start(ctx)
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatalf("expected at least one run")
	}

	if err := registry.Disable("tick"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registry.Wait()

	settled := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != settled {
		t.Fatalf("expected no runs after disable")
	}

	s := statsFor(t, registry, "tick")
	if s.Enabled {
		t.Fatalf("expected disabled in stats")
	}
	if s.NextRun != nil {
		t.Fatalf("expected no next run for a disabled job")
	}

	// Enable restarts the ticker under the given context.
	if err := registry.Enable(ctx, "tick"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deadline = time.Now().Add(time.Second)
	for calls.Load() == settled && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() == settled {
		t.Fatalf("expected runs after enable")
	}

	cancel()
	registry.Wait()
}
