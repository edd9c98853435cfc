package reconcile

import (
	"context"
	"log/slog"

	"shikkha/internal/certificate"
	"shikkha/internal/index/metrics"
	"shikkha/internal/index/store"
)

// SweeperCursor names the persisted position of the Sweeper in the receipt log.
const SweeperCursor = "ledger-sweeper"

// ReceiptSource is the ordered receipt log of the ledger.
type ReceiptSource interface {
	Receipts(ctx context.Context, after uint64, limit int) ([]certificate.Receipt, error)
	Height(ctx context.Context) (uint64, error)
}

// Sweeper replays ledger receipts the index has not applied yet.
type Sweeper struct {
	ledger    ReceiptSource
	projector *Projector
	cursors   store.Store
	batch     int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewSweeper(ledger ReceiptSource, projector *Projector, cursors store.Store, batch int, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if batch <= 0 {
		batch = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		ledger:    ledger,
		projector: projector,
		cursors:   cursors,
		batch:     batch,
		metrics:   m,
		logger:    logger,
	}
}

// Run applies every receipt above the cursor and returns how many it
// applied. The cursor advances after each receipt, so a failure resumes at
// the receipt that failed.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	cursor, err := s.cursors.Cursor(ctx, SweeperCursor)
	if err != nil {
		return 0, err
	}

	applied := 0
	for {
		receipts, err := s.ledger.Receipts(ctx, cursor, s.batch)
		if err != nil {
			return applied, err
		}
		if len(receipts) == 0 {
			break
		}
		for _, receipt := range receipts {
			if err := s.projector.Apply(ctx, receipt); err != nil {
				s.logger.ErrorContext(ctx, "failed to project receipt",
					"height", receipt.Height,
					"tx_id", receipt.TxID.String(),
					"error", err,
				)
				return applied, err
			}
			if err := s.cursors.SaveCursor(ctx, SweeperCursor, receipt.Height); err != nil {
				return applied, err
			}
			cursor = receipt.Height
			applied++
		}
		if len(receipts) < s.batch {
			break
		}
	}

	if s.metrics != nil {
		if height, err := s.ledger.Height(ctx); err == nil && height >= cursor {
			s.metrics.SetLag(height - cursor)
		}
	}
	return applied, nil
}
