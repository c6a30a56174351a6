package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/reelsmith/internal/common"
)

// badPayloadPause is the pause after discarding a payload that failed to
// decode, so a poisoned queue cannot spin the worker.
const badPayloadPause = 500 * time.Millisecond

// Processor drives one QueuedJob to a terminal job state.
type Processor interface {
	Process(ctx context.Context, qj QueuedJob) error
}

// Enqueuer is the producer-side surface of the queue.
type Enqueuer interface {
	Enqueue(qj QueuedJob) error
}

// Queue is an in-memory bounded FIFO carrying serialized QueuedJob payloads
// from the admission path to a pool of worker goroutines. Consumption is a
// blocking channel receive; an idle worker parks on the channel instead of
// polling. Payloads enqueued but not yet consumed are lost on process exit,
// which leaves their records pending.
type Queue struct {
	log        *slog.Logger
	ch         chan []byte
	workers    int
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	started    bool
	mu         sync.Mutex
}

// NewQueue creates a new Queue with the given capacity and worker count.
func NewQueue(logger *slog.Logger, capacity int, workers int) *Queue {
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultWorkerCount
	}
	return &Queue{
		log:     logger,
		ch:      make(chan []byte, capacity),
		workers: workers,
	}
}

// Start launches worker goroutines that consume payloads and process them
// using the provided Processor. One payload is driven to a terminal state
// before its worker requests the next; concurrency comes only from running
// multiple workers on the shared channel.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			return
		case payload, ok := <-q.ch:
			if !ok {
				log.Debug("queue closed, worker exiting")
				return
			}
			var qj QueuedJob
			if err := json.Unmarshal(payload, &qj); err != nil {
				// A bad payload is a queue problem, not a job failure:
				// discard it, pause, resume.
				log.Error("discarding malformed payload", "err", err)
				time.Sleep(badPayloadPause)
				continue
			}
			jobLog := log.With("job_id", qj.JobID)
			jobLog.Info("processing job", "images", len(qj.Request.Images))
			start := time.Now()
			if err := p.Process(ctx, qj); err != nil {
				jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
			} else {
				jobLog.Info("job processed", "duration", time.Since(start))
			}
		}
	}
}

// Enqueue serializes the QueuedJob and adds it to the queue without
// blocking; a full queue is reported as ErrQueueFull.
func (q *Queue) Enqueue(qj QueuedJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return ErrQueueNotReady
	}
	payload, err := json.Marshal(qj)
	if err != nil {
		return err
	}
	select {
	case q.ch <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown gracefully stops accepting work and waits for workers to finish
// current items up to the provided deadline.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		// stop workers
		if q.cancel != nil {
			q.cancel()
		}
		// close channel to unblock workers if they are waiting on receive
		close(q.ch)

		// wait with deadline
		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
			return
		case <-timer.C:
			q.log.Warn("queue shutdown deadline reached; workers may still be running")
		}
	})
}
