package service

import (
	"context"
	"errors"
	"log/slog"
	"media-gateway/internal/metrics"
	"media-gateway/internal/model"
	"media-gateway/internal/ports"
	"sync"
	"time"
)

const auditQueueSize = 1024

var (
	errAuditQueueFull = errors.New("audit queue full")
	errAuditClosed    = errors.New("audit queue closed")
)

type auditJob struct {
	ctx   context.Context
	event model.AuditEvent
	entry *model.EntryView
}

// auditQueue : writes audit records on one goroutine, in submission order.
// Requests never wait on the store.
type auditQueue struct {
	store   ports.AuditStore
	timeout time.Duration
	logger  *slog.Logger

	jobs    chan auditJob
	done    chan struct{}
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newAuditQueue(store ports.AuditStore, timeout time.Duration, logger *slog.Logger) *auditQueue {
	q := &auditQueue{
		store:   store,
		timeout: timeout,
		logger:  logger,
		jobs:    make(chan auditJob, auditQueueSize),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// push : queues event, preceded by entry when set. A full or closed queue
// drops the record.
func (q *auditQueue) push(ctx context.Context, event model.AuditEvent, entry *model.EntryView) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.failed(event, errAuditClosed)
		return
	}

	q.pending.Add(1)
	select {
	case q.jobs <- auditJob{ctx: context.WithoutCancel(ctx), event: event, entry: entry}:
	default:
		q.pending.Done()
		q.failed(event, errAuditQueueFull)
	}
}

func (q *auditQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.write(job)
		q.pending.Done()
	}
}

// write : the entry and the event are attempted independently.
func (q *auditQueue) write(job auditJob) {
	ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
	defer cancel()

	if job.entry != nil {
		if err := q.store.AddMedia(ctx, *job.entry); err != nil {
			q.failed(job.event, err)
		}
	}
	if err := q.store.AddEvent(ctx, job.event); err != nil {
		q.failed(job.event, err)
	}
}

func (q *auditQueue) flush() {
	q.pending.Wait()
}

// close : stops accepting records and waits for the queued ones, or for ctx.
func (q *auditQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *auditQueue) failed(event model.AuditEvent, err error) {
	metrics.AuditFailures.WithLabelValues(event.Operation).Inc()
	q.logger.Warn("could not update audit store",
		slog.String("operation", event.Operation),
		slog.String("uuid", event.UUID),
		slog.Any("error", err))
}
