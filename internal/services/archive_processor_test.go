package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubArchiver struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
}

func (a *stubArchiver) ArchivePending(_ context.Context, limit int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return 0, a.err
	}
	if len(a.results) == 0 {
		return 0, nil
	}
	n := a.results[0]
	a.results = a.results[1:]
	if n > limit {
		n = limit
	}
	return n, nil
}

func (a *stubArchiver) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestNewArchiveProcessor_Defaults(t *testing.T) {
	p := NewArchiveProcessor(&stubArchiver{}, ArchiveProcessorConfig{})
	def := DefaultArchiveProcessorConfig()
	if p.config.PollInterval != def.PollInterval || p.config.BatchSize != def.BatchSize {
		t.Errorf("config = %+v, want defaults %+v", p.config, def)
	}
}

func TestArchiveProcessor_ProcessBatchDrainsFullBatches(t *testing.T) {
	a := &stubArchiver{results: []int{2, 2, 1}}
	p := NewArchiveProcessor(a, ArchiveProcessorConfig{PollInterval: time.Hour, BatchSize: 2})
	p.stopCh = make(chan struct{})

	p.processBatch(context.Background())

	if a.calls != 3 {
		t.Errorf("ArchivePending calls = %d, want 3", a.calls)
	}
}

func TestArchiveProcessor_ProcessBatchStopsOnError(t *testing.T) {
	a := &stubArchiver{err: errors.New("database locked")}
	p := NewArchiveProcessor(a, ArchiveProcessorConfig{PollInterval: time.Hour, BatchSize: 2})
	p.stopCh = make(chan struct{})

	p.processBatch(context.Background())

	if a.calls != 1 {
		t.Errorf("ArchivePending calls = %d, want 1", a.calls)
	}
}

func TestArchiveProcessor_Lifecycle(t *testing.T) {
	a := &stubArchiver{}
	p := NewArchiveProcessor(a, ArchiveProcessorConfig{PollInterval: 10 * time.Millisecond, BatchSize: 5})
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}
	if !p.IsRunning() {
		t.Error("processor should be running")
	}

	deadline := time.Now().Add(time.Second)
	for a.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if a.callCount() < 2 {
		t.Error("expected the startup sweep and at least one tick")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop on a stopped processor should be a no-op, got %v", err)
	}
}
