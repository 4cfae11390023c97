package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/logging"
	"github.com/clinsafe/medledger/internal/server/config"
	"github.com/sethvargo/go-retry"
)

// RecorderStats is a snapshot of the recorder counters. Dropped counts both
// queue-full rejections and appends that exhausted their retries.
type RecorderStats struct {
	Enqueued uint64 `json:"enqueued"`
	Appended uint64 `json:"appended"`
	Dropped  uint64 `json:"dropped"`
}

// Recorder decouples audit appends from the operations that trigger them.
// Record enqueues onto a bounded channel drained by a single worker
// goroutine, so events from one origin keep their order. The worker retries
// transient storage failures with fibonacci backoff and counts what it had
// to drop; a dropped event is a warning, never an error for the caller.
type Recorder struct {
	appender  Appender
	logger    logging.Logger
	queue     chan AuditEntry
	attempts  uint64
	baseDelay time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once

	enqueued atomic.Uint64
	appended atomic.Uint64
	dropped  atomic.Uint64
}

// NewRecorder constructs a Recorder draining into appender. Call Start to
// launch the worker and Close to flush and stop it.
func NewRecorder(appender Appender, cfg *config.Config, logger logging.Logger) *Recorder {
	return &Recorder{
		appender:  appender,
		logger:    logger.With("module", "audit_recorder"),
		queue:     make(chan AuditEntry, cfg.AuditQueueSize),
		attempts:  uint64(cfg.AuditRetryAttempts),
		baseDelay: cfg.AuditRetryBaseDelay,
	}
}

// Start launches the worker goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

// Record enqueues an audit entry without blocking. When the queue is full
// the entry is dropped and counted; the triggering operation is never held
// up or failed by its audit write.
func (r *Recorder) Record(entry AuditEntry) {
	select {
	case r.queue <- entry:
		r.enqueued.Add(1)
	default:
		r.dropped.Add(1)
		r.logger.Warn(context.Background(), "audit queue full, event dropped", "action", entry.Action)
	}
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Enqueued: r.enqueued.Load(),
		Appended: r.appended.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// Close stops accepting entries, drains what is already queued, and waits
// for the worker to finish.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.queue) })
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for entry := range r.queue {
		r.append(entry)
	}
}

// append writes one entry, retrying storage unavailability with bounded
// fibonacci backoff. Validation failures are not retried; the entry is
// malformed and will stay malformed.
func (r *Recorder) append(entry AuditEntry) {
	ctx := context.Background()
	backoff := retry.WithMaxRetries(r.attempts, retry.NewFibonacci(r.baseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := r.appender.Append(ctx, entry)
		if errors.Is(err, common.ErrStorageUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		r.dropped.Add(1)
		r.logger.Warn(ctx, "audit event dropped", "action", entry.Action, "error", err)
		return
	}
	r.appended.Add(1)
}
