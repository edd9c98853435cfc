package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shikkha/internal/certificate"
	"shikkha/internal/events/metrics"
	"shikkha/internal/platform/kafka/producer"
)

// RelayCursor names the persisted height of the last relayed receipt.
const RelayCursor = "kafka-relay"

// ReceiptSource is the ordered receipt log of the ledger.
type ReceiptSource interface {
	Receipts(ctx context.Context, after uint64, limit int) ([]certificate.Receipt, error)
	Height(ctx context.Context) (uint64, error)
}

// Cursors persists relay progress.
type Cursors interface {
	Cursor(ctx context.Context, name string) (uint64, error)
	SaveCursor(ctx context.Context, name string, height uint64) error
}

// Producer publishes records synchronously.
type Producer interface {
	Produce(ctx context.Context, msgs ...*producer.Message) error
}

// Relay tails the ledger and publishes every receipt to Kafka. The cursor
// only moves after the broker acknowledged the receipt, so a crash replays
// at most the receipt in flight.
type Relay struct {
	ledger       ReceiptSource
	producer     Producer
	cursors      Cursors
	topic        string
	batchSize    int
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Relay)

func WithTopic(topic string) Option {
	return func(r *Relay) {
		r.topic = topic
	}
}

func WithBatchSize(size int) Option {
	return func(r *Relay) {
		r.batchSize = size
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		r.pollInterval = interval
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(ledger ReceiptSource, prod Producer, cursors Cursors, opts ...Option) *Relay {
	r := &Relay{
		ledger:       ledger,
		producer:     prod,
		cursors:      cursors,
		topic:        "shikkha.ledger.effects",
		batchSize:    100,
		pollInterval: time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the polling loop in a background goroutine until Stop.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "effect relay failed", "error", err)
			}
		}
	}
}

// RunOnce publishes every receipt above the cursor and returns how many it
// published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	cursor, err := r.cursors.Cursor(ctx, RelayCursor)
	if err != nil {
		return 0, err
	}

	published := 0
	for {
		receipts, err := r.ledger.Receipts(ctx, cursor, r.batchSize)
		if err != nil {
			return published, err
		}
		for _, receipt := range receipts {
			if err := r.publish(ctx, receipt); err != nil {
				if r.metrics != nil {
					r.metrics.IncrementPublishFailure()
				}
				return published, err
			}
			if err := r.cursors.SaveCursor(ctx, RelayCursor, receipt.Height); err != nil {
				return published, err
			}
			cursor = receipt.Height
			published++
			if r.metrics != nil {
				r.metrics.IncrementPublished(1)
			}
		}
		if len(receipts) < r.batchSize {
			break
		}
	}

	if r.metrics != nil {
		if height, err := r.ledger.Height(ctx); err == nil && height >= cursor {
			r.metrics.SetRelayLag(height - cursor)
		}
	}
	return published, nil
}

func (r *Relay) publish(ctx context.Context, receipt certificate.Receipt) error {
	messages := FromReceipt(receipt)
	if len(messages) == 0 {
		return nil
	}
	records := make([]*producer.Message, 0, len(messages))
	for _, m := range messages {
		value, err := m.Encode()
		if err != nil {
			return err
		}
		records = append(records, &producer.Message{
			Topic: r.topic,
			Key:   []byte(m.Key()),
			Value: value,
			Headers: map[string]string{
				HeaderEffectKind: string(m.Kind),
				HeaderTxID:       m.TxID.String(),
			},
		})
	}
	return r.producer.Produce(ctx, records...)
}

// Stop cancels the loop and waits for the batch in flight.
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
