// Package service is the ReconciledIndex: an advisory projection of ledger
// state keyed by certificate identity. Nothing here decides validity.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shikkha/internal/index/models"
	"shikkha/internal/index/store"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/sentinel"
)

type Service struct {
	store  store.Store
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts or replaces the entry for entry.CertificateID.
func (s *Service) Upsert(ctx context.Context, entry *models.Entry) error {
	if entry == nil || entry.CertificateID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "index entry requires a certificate id")
	}
	e := entry.Clone()
	if e.ClaimedStatus == "" {
		e.ClaimedStatus = models.ClaimedActive
	}
	e.UpdatedAt = s.clock().UTC()
	if err := s.store.Upsert(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write index entry")
	}
	return nil
}

// MarkRevoked records a revocation claim. It is idempotent, and marking an
// identity the index has never seen is a logged no-op.
func (s *Service) MarkRevoked(ctx context.Context, cid id.CertificateID) error {
	err := s.store.MarkRevoked(ctx, cid, s.clock().UTC())
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "revocation for unindexed certificate",
			"certificate_id", cid.String(),
		)
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to mark index entry revoked")
	}
	return nil
}

// ListByIssuer returns one page of the issuer's entries, newest first, with
// the total count.
func (s *Service) ListByIssuer(ctx context.Context, issuer id.Address, page models.Page) ([]*models.Entry, int, error) {
	if issuer.IsNil() {
		return nil, 0, dErrors.New(dErrors.CodeInvalidInput, "issuer is required")
	}
	entries, total, err := s.store.ListByIssuer(ctx, issuer, page.Normalize())
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list index entries")
	}
	return entries, total, nil
}

// Get returns the entry for cid; found is false when the index has none.
func (s *Service) Get(ctx context.Context, cid id.CertificateID) (*models.Entry, bool, error) {
	e, err := s.store.FindByID(ctx, cid)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read index entry")
	}
	return e, true, nil
}

// Locator returns the stored document locator for cid, or the zero locator
// when none is known.
func (s *Service) Locator(ctx context.Context, cid id.CertificateID) (id.DocumentLocator, error) {
	e, found, err := s.Get(ctx, cid)
	if err != nil || !found {
		return "", err
	}
	return e.DocumentLocator, nil
}
