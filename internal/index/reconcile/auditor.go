package reconcile

import (
	"context"
	"log/slog"
	"time"

	"shikkha/internal/certificate"
	"shikkha/internal/index/metrics"
	"shikkha/internal/index/models"
	"shikkha/internal/index/store"
	id "shikkha/pkg/domain"
)

// RecordSource answers batched ledger lookups.
type RecordSource interface {
	LookupMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*certificate.Record, error)
}

// Report counts the repairs made by one audit pass.
type Report struct {
	Scanned   int
	Orphaned  int
	Restored  int
	Revoked   int
	Rewritten int
}

// Auditor compares index entries against the ledger and repairs drift.
type Auditor struct {
	ledger  RecordSource
	store   store.Store
	batch   int
	clock   func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAuditor(ledger RecordSource, st store.Store, batch int, m *metrics.Metrics, logger *slog.Logger) *Auditor {
	if batch <= 0 {
		batch = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{ledger: ledger, store: st, batch: batch, clock: time.Now, metrics: m, logger: logger}
}

// Run walks the whole index once. Entries the ledger never admitted are
// flagged orphaned, not deleted; stale active claims on revoked certificates
// are marked revoked; entries whose fields drifted from the ledger are
// rewritten from ledger data.
func (a *Auditor) Run(ctx context.Context) (Report, error) {
	var report Report
	var after id.CertificateID

	for {
		entries, err := a.store.ScanAfter(ctx, after, a.batch)
		if err != nil {
			return report, err
		}
		if len(entries) == 0 {
			return report, nil
		}

		ids := make([]id.CertificateID, len(entries))
		for i, e := range entries {
			ids[i] = e.CertificateID
		}
		records, err := a.ledger.LookupMany(ctx, ids)
		if err != nil {
			return report, err
		}

		for _, e := range entries {
			report.Scanned++
			if err := a.audit(ctx, e, records[e.CertificateID], &report); err != nil {
				return report, err
			}
		}

		after = entries[len(entries)-1].CertificateID
		if len(entries) < a.batch {
			return report, nil
		}
	}
}

func (a *Auditor) audit(ctx context.Context, e *models.Entry, rec *certificate.Record, report *Report) error {
	now := a.clock().UTC()

	if rec == nil {
		if e.Orphaned {
			return nil
		}
		a.logger.WarnContext(ctx, "index entry has no ledger record",
			"certificate_id", e.CertificateID.String(),
		)
		report.Orphaned++
		a.count("orphaned")
		return a.store.SetOrphaned(ctx, e.CertificateID, true, now)
	}

	if e.Fields != rec.Fields || !e.IssuedAt.Equal(rec.IssuedAt) || e.Orphaned {
		fixed := e.Clone()
		fixed.Fields = rec.Fields
		fixed.IssuedAt = rec.IssuedAt
		fixed.Orphaned = false
		if rec.Status == certificate.StatusRevoked {
			fixed.ClaimedStatus = models.ClaimedRevoked
		}
		fixed.UpdatedAt = now
		if e.Orphaned {
			report.Restored++
			a.count("restored")
		} else {
			report.Rewritten++
			a.count("rewritten")
		}
		return a.store.Upsert(ctx, fixed)
	}

	if rec.Status == certificate.StatusRevoked && e.ClaimedStatus != models.ClaimedRevoked {
		at := now
		if rec.RevokedAt != nil {
			at = *rec.RevokedAt
		}
		report.Revoked++
		a.count("revoked")
		return a.store.MarkRevoked(ctx, e.CertificateID, at)
	}
	return nil
}

func (a *Auditor) count(kind string) {
	if a.metrics != nil {
		a.metrics.IncrementReconciled(kind)
	}
}
