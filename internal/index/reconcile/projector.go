// Package reconcile keeps the index converging on the ledger.
//
// The Projector turns committed receipts into index writes, the Sweeper tails
// the ledger's receipt log from a persisted cursor, and the Auditor walks the
// index looking for entries the ledger disagrees with. All three are
// idempotent, so running them again after a crash or alongside the Kafka
// consumer never makes the index worse.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shikkha/internal/certificate"
	"shikkha/internal/effects"
	"shikkha/internal/index/metrics"
	"shikkha/internal/index/models"
	"shikkha/internal/index/store"
	"shikkha/pkg/platform/sentinel"
)

// Projector applies ledger receipts to the index.
type Projector struct {
	store   store.Store
	clock   func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type ProjectorOption func(*Projector)

func WithProjectorClock(clock func() time.Time) ProjectorOption {
	return func(p *Projector) {
		p.clock = clock
	}
}

func WithProjectorMetrics(m *metrics.Metrics) ProjectorOption {
	return func(p *Projector) {
		p.metrics = m
	}
}

func WithProjectorLogger(logger *slog.Logger) ProjectorOption {
	return func(p *Projector) {
		p.logger = logger
	}
}

func NewProjector(st store.Store, opts ...ProjectorOption) *Projector {
	p := &Projector{store: st, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply projects every recognised effect of receipt. Unknown effect kinds
// are skipped.
func (p *Projector) Apply(ctx context.Context, receipt certificate.Receipt) error {
	for _, effect := range receipt.Effects {
		var err error
		switch effect.Kind {
		case certificate.EffectIssued:
			err = p.applyIssued(ctx, effect)
		case certificate.EffectRevoked:
			err = p.applyRevoked(ctx, effect)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// applyIssued overwrites ledger-owned data and keeps what only the index
// knows: the issuing wallet and the document locator. A revoked claim is
// never reverted because the ledger cannot un-revoke. The merge happens in
// the store so it cannot race the issuance writer.
func (p *Projector) applyIssued(ctx context.Context, effect certificate.Effect) error {
	issued, err := effects.DecodeIssued(effect)
	if err != nil {
		return err
	}

	changed, err := p.store.Project(ctx, &models.Entry{
		CertificateID: issued.ID,
		Issuer:        issued.Issuer,
		Fields:        issued.Fields,
		IssuedAt:      time.Unix(issued.IssuedAt, 0).UTC(),
		ClaimedStatus: models.ClaimedActive,
		UpdatedAt:     p.clock().UTC(),
	})
	if err != nil {
		return err
	}
	if changed {
		p.count("projected")
	}
	return nil
}

func (p *Projector) applyRevoked(ctx context.Context, effect certificate.Effect) error {
	revoked, err := effects.DecodeRevoked(effect)
	if err != nil {
		return err
	}

	existing, err := p.store.FindByID(ctx, revoked.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		p.logger.WarnContext(ctx, "revocation effect for unindexed certificate",
			"certificate_id", revoked.ID.String(),
		)
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ClaimedStatus == models.ClaimedRevoked {
		return nil
	}
	if err := p.store.MarkRevoked(ctx, revoked.ID, time.Unix(revoked.RevokedAt, 0).UTC()); err != nil {
		return err
	}
	p.count("revoked")
	return nil
}

func (p *Projector) count(kind string) {
	if p.metrics != nil {
		p.metrics.IncrementReconciled(kind)
	}
}
