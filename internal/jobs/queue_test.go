package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingProcessor struct {
	count int32
	fail  bool
	last  atomic.Value // string job id
}

func (p *countingProcessor) Process(ctx context.Context, qj QueuedJob) error {
	atomic.AddInt32(&p.count, 1)
	p.last.Store(qj.JobID)
	if p.fail {
		return errors.New("fail")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQueue_StartEnqueueShutdown(t *testing.T) {
	q := NewQueue(testLogger(), 2, 1)
	p := &countingProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, p); err != nil {
		t.Fatalf("queue start: %v", err)
	}

	qj := QueuedJob{JobID: "id1", Request: VideoRequest{AudioSource: "a", Images: []ImageSlot{{Source: "i"}}}}
	if err := q.Enqueue(qj); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// allow worker to process
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&p.count) < 1 {
		t.Fatalf("expected processor to be called at least once")
	}
	if got := p.last.Load(); got != "id1" {
		t.Fatalf("processed job id = %v, want id1", got)
	}

	// shutdown should complete promptly
	q.Shutdown(2 * time.Second)
}

func TestQueue_EnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)
	err := q.Enqueue(QueuedJob{JobID: "x"})
	if !errors.Is(err, ErrQueueNotReady) {
		t.Fatalf("enqueue before start should report ErrQueueNotReady, got %v", err)
	}
}

func TestQueue_MalformedPayloadIsDiscarded(t *testing.T) {
	q := NewQueue(testLogger(), 4, 1)
	p := &countingProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, p); err != nil {
		t.Fatalf("queue start: %v", err)
	}

	// Inject a payload that does not decode, then a valid one. The loop must
	// discard the first and still process the second.
	q.ch <- []byte("{not json")
	if err := q.Enqueue(QueuedJob{JobID: "after-bad"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&p.count) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("worker did not recover from malformed payload")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := p.last.Load(); got != "after-bad" {
		t.Fatalf("processed job id = %v, want after-bad", got)
	}
	q.Shutdown(2 * time.Second)
}

func TestQueue_FullQueueRejects(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)
	// A blocking processor pins the single worker on the first item so the
	// buffer can be filled deterministically.
	block := make(chan struct{})
	defer close(block)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, blockingProcessor{block}); err != nil {
		t.Fatalf("queue start: %v", err)
	}

	// First item occupies the worker, second fills the buffer, third is full.
	_ = q.Enqueue(QueuedJob{JobID: "a"})
	time.Sleep(20 * time.Millisecond)
	_ = q.Enqueue(QueuedJob{JobID: "b"})
	if err := q.Enqueue(QueuedJob{JobID: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

type blockingProcessor struct {
	block chan struct{}
}

func (p blockingProcessor) Process(ctx context.Context, qj QueuedJob) error {
	select {
	case <-p.block:
	case <-ctx.Done():
	}
	return nil
}
