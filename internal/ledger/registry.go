// Package ledger is the authoritative certificate registry.
//
// A certificate moves from nonexistent to Active on admission and from Active
// to Revoked on revocation; nothing else is possible. Only the administrator
// fixed at construction may write, and the authorization check happens before
// any state is touched. Writes are serialized: each one observes the full
// effect of every earlier write, and every committed write produces a Receipt
// at the next ledger height.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shikkha/internal/certificate"
	"shikkha/internal/identity"
	"shikkha/internal/ledger/metrics"
	"shikkha/internal/ledger/store"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/sentinel"
)

const (
	opAdmit  = "admit"
	opRevoke = "revoke"
)

// Registry owns ledger writes and reads.
type Registry struct {
	mu      sync.Mutex
	store   store.Store
	admin   id.Address
	deriver *identity.Deriver
	clock   func() time.Time
	newTxID func(ctx context.Context) id.TxID
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(r *Registry)

// WithClock sets the admission and revocation clock. Timestamps are truncated
// to whole seconds before use.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithTxIDSource overrides how transaction identifiers are assigned.
func WithTxIDSource(fn func(ctx context.Context) id.TxID) Option {
	return func(r *Registry) {
		r.newTxID = fn
	}
}

func WithDeriver(d *identity.Deriver) Option {
	return func(r *Registry) {
		r.deriver = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New constructs a Registry administered by admin. The administrator is
// persisted on first use; opening an existing ledger with a different
// administrator fails with CodeConflict.
func New(ctx context.Context, st store.Store, admin id.Address, opts ...Option) (*Registry, error) {
	if admin.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ledger administrator is required")
	}
	persisted, err := st.InitAdmin(ctx, admin)
	if err != nil {
		return nil, storeError(err, "failed to initialize ledger administrator")
	}
	if !persisted.Equal(admin) {
		return nil, dErrors.New(dErrors.CodeConflict, "ledger is administered by "+persisted.String())
	}
	return newRegistry(st, persisted, opts...), nil
}

// Open constructs a Registry over a ledger whose administrator is already
// persisted. It fails with CodeNotFound for an uninitialized ledger.
func Open(ctx context.Context, st store.Store, opts ...Option) (*Registry, error) {
	admin, err := st.Admin(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ledger has not been initialized")
		}
		return nil, storeError(err, "failed to load ledger administrator")
	}
	return newRegistry(st, admin, opts...), nil
}

func newRegistry(st store.Store, admin id.Address, opts ...Option) *Registry {
	r := &Registry{
		store:   st,
		admin:   admin,
		deriver: identity.NewDeriver(),
		clock:   time.Now,
		newTxID: func(context.Context) id.TxID { return id.NewTxID() },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentAdmin returns the administrator. It never changes after construction.
func (r *Registry) CurrentAdmin() id.Address {
	return r.admin
}

// IsAdmin reports whether caller may write to the ledger.
func (r *Registry) IsAdmin(caller id.Address) bool {
	return !caller.IsNil() && caller.Equal(r.admin)
}

// Admit creates a new Active record for fields and returns the receipt of
// the committed transaction. The new identity is carried by the receipt's
// CertificateIssued effect.
func (r *Registry) Admit(ctx context.Context, fields certificate.Fields, caller id.Address) (certificate.Receipt, error) {
	if !r.IsAdmin(caller) {
		r.reject(ctx, opAdmit, "unauthorized", caller)
		return certificate.Receipt{}, dErrors.New(dErrors.CodeUnauthorized, "caller is not the ledger administrator")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()

	var receipt certificate.Receipt
	err := r.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		height, err := tx.Height(ctx)
		if err != nil {
			return err
		}
		seq := height + 1
		issuedAt := r.now()

		rec := &certificate.Record{
			Fields:   fields,
			Issuer:   r.admin,
			Sequence: seq,
			IssuedAt: issuedAt,
			Status:   certificate.StatusActive,
		}
		rec.ID = r.deriver.Derive(fields, identity.Context{
			Issuer:   r.admin,
			Sequence: seq,
			IssuedAt: issuedAt,
		})

		if err := tx.Insert(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "certificate identity already exists")
			}
			return err
		}

		effect, err := certificate.IssuedEffect(rec)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode admission effect")
		}
		receipt = certificate.Receipt{
			TxID:      r.newTxID(ctx),
			Height:    seq,
			Timestamp: issuedAt,
			Caller:    caller,
			Effects:   []certificate.Effect{effect},
		}
		return tx.AppendReceipt(ctx, &receipt)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			r.reject(ctx, opAdmit, "conflict", caller)
		}
		return certificate.Receipt{}, storeError(err, "failed to admit certificate")
	}

	if r.metrics != nil {
		r.metrics.ObserveWrite(opAdmit, start)
		r.metrics.IncrementAdmissions()
		r.metrics.SetHeight(receipt.Height)
	}
	r.logger.InfoContext(ctx, "certificate admitted",
		"height", receipt.Height,
		"tx_id", receipt.TxID.String(),
	)
	return receipt, nil
}

// Revoke moves an Active record to Revoked. Revoking an unknown identity
// fails with CodeNotFound and revoking twice fails with CodeAlreadyRevoked;
// neither changes state.
func (r *Registry) Revoke(ctx context.Context, cid id.CertificateID, caller id.Address) (certificate.Receipt, error) {
	if !r.IsAdmin(caller) {
		r.reject(ctx, opRevoke, "unauthorized", caller)
		return certificate.Receipt{}, dErrors.New(dErrors.CodeUnauthorized, "caller is not the ledger administrator")
	}
	if cid.IsZero() {
		return certificate.Receipt{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()

	var receipt certificate.Receipt
	err := r.store.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.Find(ctx, cid)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "certificate not found")
			}
			return err
		}
		if rec.Status == certificate.StatusRevoked {
			return dErrors.New(dErrors.CodeAlreadyRevoked, "certificate is already revoked")
		}

		height, err := tx.Height(ctx)
		if err != nil {
			return err
		}
		revokedAt := r.now()
		if err := tx.UpdateStatus(ctx, cid, certificate.StatusRevoked, revokedAt); err != nil {
			return err
		}

		effect, err := certificate.RevokedEffect(cid, revokedAt)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode revocation effect")
		}
		receipt = certificate.Receipt{
			TxID:      r.newTxID(ctx),
			Height:    height + 1,
			Timestamp: revokedAt,
			Caller:    caller,
			Effects:   []certificate.Effect{effect},
		}
		return tx.AppendReceipt(ctx, &receipt)
	})
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound:
			r.reject(ctx, opRevoke, "not_found", caller)
		case dErrors.CodeAlreadyRevoked:
			r.reject(ctx, opRevoke, "already_revoked", caller)
		}
		return certificate.Receipt{}, storeError(err, "failed to revoke certificate")
	}

	if r.metrics != nil {
		r.metrics.ObserveWrite(opRevoke, start)
		r.metrics.IncrementRevocations()
		r.metrics.SetHeight(receipt.Height)
	}
	r.logger.InfoContext(ctx, "certificate revoked",
		"certificate_id", cid.String(),
		"height", receipt.Height,
	)
	return receipt, nil
}

// Lookup returns the ledger record for cid. Absence is reported as
// found == false with a nil error; err is only set when the ledger could not
// be read.
func (r *Registry) Lookup(ctx context.Context, cid id.CertificateID) (*certificate.Record, bool, error) {
	rec, err := r.store.Find(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, storeError(err, "failed to read ledger")
	}
	return rec, true, nil
}

// LookupMany returns the records among ids that the ledger has admitted.
func (r *Registry) LookupMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*certificate.Record, error) {
	recs, err := r.store.FindMany(ctx, ids)
	if err != nil {
		return nil, storeError(err, "failed to read ledger")
	}
	return recs, nil
}

// Receipts returns up to limit committed receipts above height after, in
// height order.
func (r *Registry) Receipts(ctx context.Context, after uint64, limit int) ([]certificate.Receipt, error) {
	receipts, err := r.store.ReceiptsAfter(ctx, after, limit)
	if err != nil {
		return nil, storeError(err, "failed to read ledger receipts")
	}
	return receipts, nil
}

func (r *Registry) Height(ctx context.Context) (uint64, error) {
	h, err := r.store.Height(ctx)
	if err != nil {
		return 0, storeError(err, "failed to read ledger height")
	}
	return h, nil
}

func (r *Registry) now() time.Time {
	return r.clock().UTC().Truncate(time.Second)
}

func (r *Registry) reject(ctx context.Context, operation, reason string, caller id.Address) {
	if r.metrics != nil {
		r.metrics.IncrementRejections(operation, reason)
	}
	r.logger.WarnContext(ctx, "ledger write rejected",
		"operation", operation,
		"reason", reason,
		"caller", caller.String(),
	)
}

// storeError keeps domain errors raised inside a transaction and classifies
// everything else as a transport failure.
func storeError(err error, msg string) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrCorrupt) {
		return dErrors.Wrap(err, dErrors.CodeDecode, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}
