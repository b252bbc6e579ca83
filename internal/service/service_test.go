package service_test

import (
	"context"
	"testing"
	"time"

	"jsonjoin/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("job-1") {
		t.Fatal("expected second TryLock for same job to fail")
	}
	if !g.TryLock("job-2") {
		t.Fatal("expected TryLock for different job to succeed")
	}
	if got := g.Running(); len(got) != 2 || got[0] != "job-1" || got[1] != "job-2" {
		t.Fatalf("expected [job-1 job-2] running, got %v", got)
	}
	g.Unlock("job-1")
	g.Unlock("job-2")

	if !g.TryLock("job-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("job-1")
	if got := g.Running(); len(got) != 0 {
		t.Fatalf("expected nothing running, got %v", got)
	}
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

func TestRunningGuard_WaitAllHonorsContext(t *testing.T) {
	var g service.ExportedRunningGuard
	g.TryLock("stuck")
	defer g.Unlock("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	g.WaitAll(ctx)
	if time.Since(start) > time.Second {
		t.Fatal("WaitAll ignored context cancellation")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "join:completed", map[string]string{"jobId": "j1"})
	m.Emit(ctx, "join:failed", nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != "join:completed" {
		t.Errorf("expected 'join:completed', got %q", m.Events[0].Event)
	}
}

func TestMockEmitter_Snapshot(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "a", "first")
	snap := m.Snapshot()
	m.Emit(ctx, "b", "second")

	if len(snap) != 1 {
		t.Fatalf("snapshot should not see later events, got %d", len(snap))
	}
	if m.Events[len(m.Events)-1].Event != "b" {
		t.Errorf("expected last event 'b', got %q", m.Events[len(m.Events)-1].Event)
	}
}

func TestLogEmitter_DoesNotPanic(t *testing.T) {
	var e service.EventEmitter = service.LogEmitter{}
	e.Emit(context.Background(), "join:completed", map[string]any{"jobId": "j1", "rows": 3})
	e.Emit(context.Background(), "join:failed", func() {})
}
