package tasks

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/maternal-assist/internal/config"
)

func testConfig(workers int) *config.Config {
	return &config.Config{
		TaskMaxWorkers:             workers,
		TaskCleanupIntervalSeconds: 3600,
		TaskMaxAgeHours:            24,
	}
}

func newTestManager(t *testing.T, workers int) *Manager {
	t.Helper()
	manager, err := NewManager(testConfig(workers), log.Default())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return manager
}

// waitForStatus は指定した状態になるまでポーリングします。
func waitForStatus(t *testing.T, m *Manager, taskID string, want Status) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := m.GetStatus(taskID)
		if ok && record.Status == want {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	record, _ := m.GetStatus(taskID)
	t.Fatalf("task %s never reached %s (last: %+v)", taskID, want, record)
	return Record{}
}

func TestSubmitReturnsPendingImmediately(t *testing.T) {
	manager := newTestManager(t, 1)
	// ワーカー未起動の間は誰もレコードに触れない
	taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	record, ok := manager.GetStatus(taskID)
	if !ok {
		t.Fatalf("record not found: %s", taskID)
	}
	if record.Status != StatusPending {
		t.Fatalf("status = %s, want %s", record.Status, StatusPending)
	}
}

func TestSubmitNilJob(t *testing.T) {
	manager := newTestManager(t, 1)
	if _, err := manager.Submit(nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestJobSuccess(t *testing.T) {
	manager := newTestManager(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	release := make(chan struct{})
	taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		report(50)
		<-release
		return "answer", nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	record := waitForStatus(t, manager, taskID, StatusRunning)
	if record.StartedAt == nil {
		t.Fatal("expected StartedAt while running")
	}

	close(release)
	record = waitForStatus(t, manager, taskID, StatusCompleted)
	if record.Result != "answer" {
		t.Fatalf("result = %v, want answer", record.Result)
	}
	if record.Error != "" {
		t.Fatalf("error should be empty, got %q", record.Error)
	}
	if record.Progress != 100 {
		t.Fatalf("progress = %d, want 100", record.Progress)
	}
	if record.StartedAt.After(*record.CompletedAt) {
		t.Fatal("StartedAt must not be after CompletedAt")
	}
}

func TestJobFailure(t *testing.T) {
	manager := newTestManager(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		return nil, errors.New("boom")
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	record := waitForStatus(t, manager, taskID, StatusFailed)
	if record.Error != "boom" {
		t.Fatalf("error = %q, want boom", record.Error)
	}
	if record.Result != nil {
		t.Fatalf("result should be absent on failure, got %v", record.Result)
	}
}

func TestJobPanicIsIsolated(t *testing.T) {
	manager := newTestManager(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	panicID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		panic("worker must survive this")
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	record := waitForStatus(t, manager, panicID, StatusFailed)
	if !strings.HasPrefix(record.Error, "panic:") {
		t.Fatalf("error = %q, want panic prefix", record.Error)
	}

	// 同じスロットが次のジョブを処理できること
	nextID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		return "still alive", nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitForStatus(t, manager, nextID, StatusCompleted)
}

func TestMoreJobsThanWorkers(t *testing.T) {
	manager := newTestManager(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	var running, maxRunning int32
	var mu sync.Mutex
	observe := func(delta int32) {
		mu.Lock()
		defer mu.Unlock()
		running += delta
		if running > maxRunning {
			maxRunning = running
		}
	}

	taskIDs := make([]string, 6)
	for i := 0; i < 6; i++ {
		index := i
		taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
			observe(1)
			defer observe(-1)
			time.Sleep(30 * time.Millisecond)
			return index, nil
		})
		if err != nil {
			t.Fatalf("Submit(%d) returned error: %v", i, err)
		}
		taskIDs[i] = taskID
	}

	for i, taskID := range taskIDs {
		record := waitForStatus(t, manager, taskID, StatusCompleted)
		if record.Result != i {
			t.Fatalf("task %d result = %v, want %d", i, record.Result, i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxRunning > 5 {
		t.Fatalf("max concurrent jobs = %d, want <= 5", maxRunning)
	}
}

func TestSubmitNeverBlocksWhenSaturated(t *testing.T) {
	manager := newTestManager(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	release := make(chan struct{})
	defer close(release)

	var submitted atomic.Int32
	taskIDs := make([]string, 0, 10)
	start := time.Now()
	for i := 0; i < 10; i++ {
		taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
			<-release
			return nil, nil
		})
		if err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
		submitted.Add(1)
		taskIDs = append(taskIDs, taskID)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("submissions took %v, should not block on busy workers", elapsed)
	}
	if submitted.Load() != 10 {
		t.Fatalf("submitted = %d, want 10", submitted.Load())
	}
	for _, taskID := range taskIDs {
		if _, ok := manager.GetStatus(taskID); !ok {
			t.Fatalf("record not found for queued task %s", taskID)
		}
	}
}

func TestGetStatusUnknownID(t *testing.T) {
	manager := newTestManager(t, 1)
	if _, ok := manager.GetStatus("task_never_submitted"); ok {
		t.Fatal("expected not found for unknown id")
	}
}

func TestCleanupRemovesExpiredTasks(t *testing.T) {
	cfg := testConfig(1)
	cfg.TaskMaxAgeHours = 0
	manager, err := NewManager(cfg, log.Default())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	waitForStatus(t, manager, taskID, StatusCompleted)

	time.Sleep(5 * time.Millisecond)
	if removed := manager.Cleanup(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := manager.GetStatus(taskID); ok {
		t.Fatal("expired task should report not found")
	}
}

func TestShutdownWaitsForRunningJobs(t *testing.T) {
	manager := newTestManager(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	taskID, err := manager.Submit(func(ctx context.Context, report ProgressFunc) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "finished", nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	record, ok := manager.GetStatus(taskID)
	if !ok || record.Status != StatusCompleted {
		t.Fatalf("task should complete before shutdown returns, got %+v", record)
	}
}
