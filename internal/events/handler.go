package events

import (
	"context"
	"log/slog"

	"shikkha/internal/certificate"
	"shikkha/internal/events/metrics"
	"shikkha/internal/platform/kafka/consumer"
	dErrors "shikkha/pkg/domain-errors"
)

// Applier projects a receipt into the index.
type Applier interface {
	Apply(ctx context.Context, receipt certificate.Receipt) error
}

// Handler consumes effect messages and applies them to the index.
type Handler struct {
	applier Applier
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHandler(applier Applier, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{applier: applier, metrics: m, logger: logger}
}

// Handle applies one message. Undecodable messages and payloads are logged
// and committed so they cannot block the partition; store failures are
// returned so the consumer redelivers.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	m, err := Decode(msg.Value)
	if err != nil {
		h.skip(ctx, msg, err)
		return nil
	}
	if err := h.applier.Apply(ctx, m.Receipt()); err != nil {
		if dErrors.HasCode(err, dErrors.CodeDecode) {
			h.skip(ctx, msg, err)
			return nil
		}
		h.count("retry")
		return err
	}
	h.logger.DebugContext(ctx, "effect applied",
		"kind", string(m.Kind),
		"height", m.Height,
		"offset", msg.Offset,
	)
	h.count("applied")
	return nil
}

func (h *Handler) skip(ctx context.Context, msg *consumer.Message, err error) {
	h.logger.ErrorContext(ctx, "skipping malformed effect message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
	h.count("skipped")
}

func (h *Handler) count(result string) {
	if h.metrics != nil {
		h.metrics.IncrementConsumed(result)
	}
}
