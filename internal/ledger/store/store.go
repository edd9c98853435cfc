// Package store persists ledger state: the administrator, certificate records
// and the ordered receipt log. All writes happen inside Transact, which
// serializes writers and commits a whole transaction or none of it.
package store

import (
	"context"
	"time"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
)

// Tx is the write view of the ledger inside one transaction.
type Tx interface {
	// Height returns the height of the last committed receipt (0 when empty).
	Height(ctx context.Context) (uint64, error)
	// Find returns sentinel.ErrNotFound when the identity was never admitted.
	Find(ctx context.Context, cid id.CertificateID) (*certificate.Record, error)
	// Insert returns sentinel.ErrConflict when the identity already exists.
	Insert(ctx context.Context, rec *certificate.Record) error
	UpdateStatus(ctx context.Context, cid id.CertificateID, status certificate.Status, at time.Time) error
	// AppendReceipt requires receipt.Height to be exactly Height()+1.
	AppendReceipt(ctx context.Context, receipt *certificate.Receipt) error
}

// Store is a durable ledger backend.
type Store interface {
	// Transact runs fn with exclusive write access. Any error from fn rolls
	// back every write made through tx.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Find(ctx context.Context, cid id.CertificateID) (*certificate.Record, error)
	// FindMany returns the records that exist among ids, keyed by identity.
	FindMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*certificate.Record, error)
	Height(ctx context.Context) (uint64, error)
	// ReceiptsAfter returns up to limit receipts with height > after, in order.
	ReceiptsAfter(ctx context.Context, after uint64, limit int) ([]certificate.Receipt, error)
	// InitAdmin persists admin on first use and returns the persisted administrator.
	InitAdmin(ctx context.Context, admin id.Address) (id.Address, error)
	// Admin returns sentinel.ErrNotFound before InitAdmin has run.
	Admin(ctx context.Context) (id.Address, error)
}
