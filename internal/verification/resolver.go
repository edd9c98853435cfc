// Package verification answers "is this certificate genuine?" for public
// verifiers. The ledger alone decides Valid, Revoked and NotFound; the index
// is consulted only to attach a document locator to a Valid outcome.
package verification

import (
	"context"
	"log/slog"
	"time"

	"shikkha/internal/certificate"
	"shikkha/internal/platform/tracer"
	"shikkha/internal/verification/metrics"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// Ledger is the authoritative record source.
type Ledger interface {
	Lookup(ctx context.Context, cid id.CertificateID) (*certificate.Record, bool, error)
}

// LocatorSource returns the document locator recorded for a certificate, or
// the zero locator when none is known.
type LocatorSource interface {
	Locator(ctx context.Context, cid id.CertificateID) (id.DocumentLocator, error)
}

// DocumentURLs turns a locator into a retrievable URL.
type DocumentURLs interface {
	URL(locator id.DocumentLocator) (string, error)
}

// Resolver runs verification attempts.
type Resolver struct {
	ledger    Ledger
	locators  LocatorSource
	documents DocumentURLs
	timeout   time.Duration
	tracer    tracer.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Resolver)

// WithTimeout bounds each attempt. A lookup that exceeds it resolves to Error.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver builds a Resolver. locators and documents may be nil, in which
// case Valid outcomes carry no document reference.
func NewResolver(ledger Ledger, locators LocatorSource, documents DocumentURLs, opts ...Option) *Resolver {
	r := &Resolver{
		ledger:    ledger,
		locators:  locators,
		documents: documents,
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify resolves cid to a terminal outcome. It never returns an error of
// its own: ledger failures become StateError with the failure in Cause.
func (r *Resolver) Verify(ctx context.Context, cid id.CertificateID) Outcome {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, tracer.SpanVerify, tracer.String("certificate_id", cid.String()))

	attempt := NewAttempt()
	outcome := r.resolve(ctx, attempt, cid)

	span.SetAttributes(
		tracer.String("outcome", outcome.State.String()),
		tracer.Bool("document_attached", !outcome.DocumentLocator.IsZero()),
	)
	span.End(outcome.Cause)

	if r.metrics != nil {
		r.metrics.ObserveOutcome(outcome.State.String(), start)
	}
	return outcome
}

func (r *Resolver) resolve(ctx context.Context, attempt *Attempt, cid id.CertificateID) Outcome {
	outcome := Outcome{CertificateID: cid}
	if err := attempt.Start(); err != nil {
		r.logger.ErrorContext(ctx, "verification attempt reused",
			"certificate_id", cid.String(),
			"error", err,
		)
		outcome.State = StateError
		outcome.Cause = err
		return outcome
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rec, found, err := r.lookup(ctx, cid)
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "verification could not reach the ledger",
			"certificate_id", cid.String(),
			"error", err,
		)
		outcome.Cause = err
		return r.settle(ctx, attempt, outcome, StateError)
	case !found:
		return r.settle(ctx, attempt, outcome, StateNotFound)
	}

	switch rec.Status {
	case certificate.StatusActive:
		outcome.Certificate = viewOf(rec)
		outcome.DocumentLocator, outcome.DocumentURL = r.document(ctx, cid)
		return r.settle(ctx, attempt, outcome, StateValid)
	case certificate.StatusRevoked:
		outcome.Certificate = viewOf(rec)
		return r.settle(ctx, attempt, outcome, StateRevoked)
	default:
		r.logger.ErrorContext(ctx, "ledger record has an unknown status",
			"certificate_id", cid.String(),
			"status", string(rec.Status),
		)
		outcome.Cause = dErrors.New(dErrors.CodeDecode, "ledger record has unknown status "+string(rec.Status))
		return r.settle(ctx, attempt, outcome, StateError)
	}
}

func (r *Resolver) settle(ctx context.Context, attempt *Attempt, outcome Outcome, to State) Outcome {
	if err := attempt.Resolve(to); err != nil {
		r.logger.ErrorContext(ctx, "verification attempt could not settle",
			"certificate_id", outcome.CertificateID.String(),
			"to", to.String(),
			"error", err,
		)
		outcome.State = StateError
		outcome.Certificate = nil
		outcome.DocumentLocator, outcome.DocumentURL = "", ""
		outcome.Cause = err
		return outcome
	}
	outcome.State = attempt.State()
	return outcome
}

func (r *Resolver) lookup(ctx context.Context, cid id.CertificateID) (*certificate.Record, bool, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanLedgerLookup)
	rec, found, err := r.ledger.Lookup(ctx, cid)
	span.SetAttributes(tracer.Bool("found", found))
	span.End(err)
	return rec, found, err
}

// document looks up the best-effort document reference for a Valid
// certificate. Failures are logged and yield empty values.
func (r *Resolver) document(ctx context.Context, cid id.CertificateID) (id.DocumentLocator, string) {
	if r.locators == nil {
		return "", ""
	}
	ctx, span := r.tracer.Start(ctx, tracer.SpanIndexLocator)
	locator, err := r.locators.Locator(ctx, cid)
	span.End(err)
	if err != nil {
		r.locatorFailed(ctx, cid, "index lookup failed", err)
		return "", ""
	}
	if locator.IsZero() || r.documents == nil {
		return locator, ""
	}
	url, err := r.documents.URL(locator)
	if err != nil {
		r.locatorFailed(ctx, cid, "document url unavailable", err)
		return locator, ""
	}
	return locator, url
}

func (r *Resolver) locatorFailed(ctx context.Context, cid id.CertificateID, msg string, err error) {
	if r.metrics != nil {
		r.metrics.IncrementLocatorFailure()
	}
	r.logger.WarnContext(ctx, msg,
		"certificate_id", cid.String(),
		"error", err,
	)
}
