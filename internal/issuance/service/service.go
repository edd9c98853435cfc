// Package service implements the admin submission API: admission with an
// optional certificate document, revocation, and the advisory issuer listing.
//
// The ledger write is the only step that decides success. Index updates are
// queued after the write commits and never affect the result; a submission is
// never retried here because a second admission would derive a new identity.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"shikkha/internal/certificate"
	indexModels "shikkha/internal/index/models"
	"shikkha/internal/issuance/idempotency"
	"shikkha/internal/issuance/metrics"
	"shikkha/internal/issuance/models"
	"shikkha/internal/platform/tracer"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

const (
	opIssue  = "issue"
	opRevoke = "revoke"
)

// Ledger is the authoritative registry.
type Ledger interface {
	Admit(ctx context.Context, fields certificate.Fields, caller id.Address) (certificate.Receipt, error)
	Revoke(ctx context.Context, cid id.CertificateID, caller id.Address) (certificate.Receipt, error)
	IsAdmin(caller id.Address) bool
	CurrentAdmin() id.Address
}

// Extractor recovers the admitted identity from a receipt.
type Extractor interface {
	Extract(receipt certificate.Receipt) (id.CertificateID, error)
}

// Documents stores certificate documents by content.
type Documents interface {
	Put(ctx context.Context, doc []byte) (id.DocumentLocator, error)
	URL(locator id.DocumentLocator) (string, error)
}

// IndexWriter queues advisory index updates.
type IndexWriter interface {
	EnqueueUpsert(ctx context.Context, entry *indexModels.Entry) bool
	EnqueueRevoked(ctx context.Context, cid id.CertificateID) bool
}

// IndexReader serves the advisory issuer listing.
type IndexReader interface {
	ListByIssuer(ctx context.Context, issuer id.Address, page indexModels.Page) ([]*indexModels.Entry, int, error)
}

// Service coordinates admin submissions.
type Service struct {
	ledger      Ledger
	extractor   Extractor
	documents   Documents
	writer      IndexWriter
	reader      IndexReader
	idempotency idempotency.Store
	keyTTL      time.Duration
	tracer      tracer.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Service)

// WithIdempotency enables idempotency keys, remembered for ttl.
func WithIdempotency(st idempotency.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = st
		s.keyTTL = ttl
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(ledger Ledger, extractor Extractor, documents Documents, writer IndexWriter, reader IndexReader, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		extractor: extractor,
		documents: documents,
		writer:    writer,
		reader:    reader,
		keyTTL:    24 * time.Hour,
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentAdmin returns the ledger administrator.
func (s *Service) CurrentAdmin() id.Address {
	return s.ledger.CurrentAdmin()
}

// IsAdmin reports whether caller may submit.
func (s *Service) IsAdmin(caller id.Address) bool {
	return s.ledger.IsAdmin(caller)
}

// Issue admits a certificate and returns its identity.
func (s *Service) Issue(ctx context.Context, caller id.Address, req models.IssueRequest) (result *models.IssueResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIssue, tracer.String("caller", caller.String()))
	defer func() {
		s.count(opIssue, err)
		span.End(err)
	}()

	models.NormalizeFields(&req.Fields)
	if err := models.ValidateFields(req.Fields); err != nil {
		return nil, err
	}
	if !s.ledger.IsAdmin(caller) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the ledger administrator")
	}

	key := scopedKey(caller, req.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		replay, err := s.reserve(ctx, key, req.Fingerprint())
		if err != nil || replay != nil {
			if replay != nil {
				span.AddEvent("idempotent_replay")
			}
			return replay, err
		}
	}

	result, submitted, err := s.issue(ctx, caller, req)
	if key != "" && s.idempotency != nil {
		s.settle(ctx, key, req.Fingerprint(), result, submitted, err)
	}
	return result, err
}

// issue reports submitted once the ledger write has been attempted.
func (s *Service) issue(ctx context.Context, caller id.Address, req models.IssueRequest) (*models.IssueResult, bool, error) {
	var locator id.DocumentLocator
	var url string
	if len(req.Document) > 0 {
		var err error
		locator, url, err = s.storeDocument(ctx, req.Document)
		if err != nil {
			return nil, false, err
		}
	}

	receipt, err := s.ledger.Admit(ctx, req.Fields, caller)
	if err != nil {
		return nil, true, err
	}
	cid, err := s.extractor.Extract(receipt)
	if err != nil {
		s.logger.ErrorContext(ctx, "admission committed but identity could not be recovered",
			"tx_id", receipt.TxID.String(),
			"height", receipt.Height,
			"error", err,
		)
		return nil, true, err
	}

	s.enqueue(ctx, cid, s.writer.EnqueueUpsert(ctx, &indexModels.Entry{
		CertificateID:   cid,
		Issuer:          caller,
		Fields:          req.Fields,
		IssuedAt:        receipt.Timestamp,
		ClaimedStatus:   indexModels.ClaimedActive,
		DocumentLocator: locator,
	}))

	s.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", cid.String(),
		"tx_id", receipt.TxID.String(),
		"document_locator", locator.String(),
	)
	return &models.IssueResult{
		CertificateID:   cid,
		TxID:            receipt.TxID,
		Height:          receipt.Height,
		IssuedAt:        receipt.Timestamp,
		DocumentLocator: locator,
		DocumentURL:     url,
	}, true, nil
}

func (s *Service) storeDocument(ctx context.Context, doc []byte) (id.DocumentLocator, string, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanDocumentStore, tracer.Int64("bytes", int64(len(doc))))
	locator, err := s.documents.Put(ctx, doc)
	span.End(err)
	if err != nil {
		return "", "", err
	}
	if s.metrics != nil {
		s.metrics.ObserveDocument(len(doc))
	}
	url, err := s.documents.URL(locator)
	if err != nil {
		return "", "", err
	}
	return locator, url, nil
}

// Revoke revokes cid on the ledger and queues the index update.
func (s *Service) Revoke(ctx context.Context, caller id.Address, cid id.CertificateID) (result *models.RevokeResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRevoke,
		tracer.String("caller", caller.String()),
		tracer.String("certificate_id", cid.String()),
	)
	defer func() {
		s.count(opRevoke, err)
		span.End(err)
	}()

	receipt, err := s.ledger.Revoke(ctx, cid, caller)
	if err != nil {
		return nil, err
	}
	s.enqueue(ctx, cid, s.writer.EnqueueRevoked(ctx, cid))

	s.logger.InfoContext(ctx, "certificate revoked",
		"certificate_id", cid.String(),
		"tx_id", receipt.TxID.String(),
	)
	return &models.RevokeResult{
		CertificateID: cid,
		TxID:          receipt.TxID,
		Height:        receipt.Height,
		RevokedAt:     receipt.Timestamp,
	}, nil
}

// List returns the advisory index entries recorded for issuer. Entries carry
// no validity; verification must go through the ledger.
func (s *Service) List(ctx context.Context, issuer id.Address, page indexModels.Page) ([]*indexModels.Entry, int, error) {
	return s.reader.ListByIssuer(ctx, issuer, page)
}

// storedIssue is the value remembered under an idempotency key.
type storedIssue struct {
	Fingerprint string             `json:"fingerprint"`
	Result      models.IssueResult `json:"result"`
}

func (s *Service) reserve(ctx context.Context, key, fingerprint string) (*models.IssueResult, error) {
	state, stored, err := s.idempotency.Reserve(ctx, key, s.keyTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "idempotency store unavailable")
	}
	switch state {
	case idempotency.InFlight:
		return nil, dErrors.New(dErrors.CodeConflict, "a submission with this idempotency key is in progress or its outcome is unknown")
	case idempotency.Completed:
		var prior storedIssue
		if err := json.Unmarshal(stored, &prior); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDecode, "stored idempotency result is malformed")
		}
		if prior.Fingerprint != fingerprint {
			return nil, dErrors.New(dErrors.CodeConflict, "idempotency key was already used for a different submission")
		}
		result := prior.Result
		result.Replayed = true
		if s.metrics != nil {
			s.metrics.IncrementReplay()
		}
		return &result, nil
	default:
		return nil, nil
	}
}

// settle records the outcome for key. Failures before the ledger write and
// definitive ledger rejections free the key for a corrected resubmission.
// When the ledger outcome is unknown the reservation stays until it expires.
func (s *Service) settle(ctx context.Context, key, fingerprint string, result *models.IssueResult, submitted bool, err error) {
	if err == nil {
		raw, mErr := json.Marshal(storedIssue{Fingerprint: fingerprint, Result: *result})
		if mErr == nil {
			mErr = s.idempotency.Complete(ctx, key, raw, s.keyTTL)
		}
		if mErr != nil {
			s.logger.WarnContext(ctx, "failed to store idempotency result", "error", mErr)
		}
		return
	}
	if submitted && outcomeUnknown(err) {
		s.logger.WarnContext(ctx, "admission outcome unknown; idempotency key held until expiry",
			"error", err,
		)
		return
	}
	if rErr := s.idempotency.Release(ctx, key); rErr != nil {
		s.logger.WarnContext(ctx, "failed to release idempotency key", "error", rErr)
	}
}

func outcomeUnknown(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeTimeout, dErrors.CodeEffectNotFound, dErrors.CodeDecode, dErrors.CodeInternal:
		return true
	default:
		return false
	}
}

func (s *Service) enqueue(ctx context.Context, cid id.CertificateID, queued bool) {
	if queued {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementEnqueueDrop()
	}
	s.logger.WarnContext(ctx, "index update not queued; reconciliation will repair it",
		"certificate_id", cid.String(),
	)
}

func (s *Service) count(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(dErrors.CodeOf(err))
	}
	s.metrics.IncrementSubmission(operation, result)
}

func scopedKey(caller id.Address, key string) string {
	if key == "" {
		return ""
	}
	return caller.String() + ":" + key
}
