package service

import (
	"context"
	"log/slog"
	"time"

	"shikkha/internal/index/metrics"
	"shikkha/internal/index/models"
	id "shikkha/pkg/domain"
)

// Indexer is the write side of the index used by Writer.
type Indexer interface {
	Upsert(ctx context.Context, entry *models.Entry) error
	MarkRevoked(ctx context.Context, cid id.CertificateID) error
}

const (
	opUpsert  = "upsert"
	opRevoked = "mark_revoked"
)

type writeJob struct {
	op    string
	entry *models.Entry
	cid   id.CertificateID
}

// Writer applies index writes in the background with bounded retries.
// Enqueueing never blocks and never reports index failures to the caller;
// anything the writer loses is repaired by reconciliation.
type Writer struct {
	index        Indexer
	queue        chan writeJob
	retries      int
	backoff      time.Duration
	drainTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type WriterOption func(*Writer)

func WithQueueSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan writeJob, n)
		}
	}
}

// WithRetries sets how many times a failed write is retried.
func WithRetries(n int) WriterOption {
	return func(w *Writer) {
		if n >= 0 {
			w.retries = n
		}
	}
}

func WithBackoff(d time.Duration) WriterOption {
	return func(w *Writer) {
		w.backoff = d
	}
}

func WithWriterMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) {
		w.metrics = m
	}
}

func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

func NewWriter(index Indexer, opts ...WriterOption) *Writer {
	w := &Writer{
		index:        index,
		queue:        make(chan writeJob, 256),
		retries:      3,
		backoff:      100 * time.Millisecond,
		drainTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnqueueUpsert schedules an upsert. It returns false when the queue is full
// and the write was dropped.
func (w *Writer) EnqueueUpsert(ctx context.Context, entry *models.Entry) bool {
	return w.enqueue(ctx, writeJob{op: opUpsert, entry: entry.Clone(), cid: entry.CertificateID})
}

// EnqueueRevoked schedules a revocation claim.
func (w *Writer) EnqueueRevoked(ctx context.Context, cid id.CertificateID) bool {
	return w.enqueue(ctx, writeJob{op: opRevoked, cid: cid})
}

func (w *Writer) enqueue(ctx context.Context, job writeJob) bool {
	select {
	case w.queue <- job:
		w.observeQueue()
		return true
	default:
		if w.metrics != nil {
			w.metrics.IncrementWriteDropped()
		}
		w.logger.WarnContext(ctx, "index writer queue full, dropping write",
			"operation", job.op,
			"certificate_id", job.cid.String(),
		)
		return false
	}
}

// Run processes writes until ctx is cancelled, then drains what is already
// queued within a short grace period.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case job := <-w.queue:
			w.observeQueue()
			w.apply(ctx, job)
		}
	}
}

func (w *Writer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()
	for {
		select {
		case job := <-w.queue:
			w.apply(ctx, job)
		default:
			w.observeQueue()
			return
		}
	}
}

func (w *Writer) apply(ctx context.Context, job writeJob) {
	delay := w.backoff
	err := w.write(ctx, job)
	for attempt := 1; err != nil && attempt <= w.retries; attempt++ {
		select {
		case <-ctx.Done():
			w.abandon(ctx, job, ctx.Err())
			return
		case <-time.After(delay):
		}
		delay *= 2
		err = w.write(ctx, job)
	}
	if err != nil {
		w.abandon(ctx, job, err)
	}
}

func (w *Writer) write(ctx context.Context, job writeJob) error {
	if job.op == opRevoked {
		return w.index.MarkRevoked(ctx, job.cid)
	}
	return w.index.Upsert(ctx, job.entry)
}

func (w *Writer) abandon(ctx context.Context, job writeJob, err error) {
	if w.metrics != nil {
		w.metrics.IncrementWriteFailed(job.op)
	}
	w.logger.ErrorContext(ctx, "index write abandoned",
		"operation", job.op,
		"certificate_id", job.cid.String(),
		"error", err,
	)
}

func (w *Writer) observeQueue() {
	if w.metrics != nil {
		w.metrics.SetQueueDepth(len(w.queue))
	}
}
