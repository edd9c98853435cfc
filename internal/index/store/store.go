// Package store persists the certificate index and reconciliation cursors.
package store

import (
	"bytes"
	"context"
	"sort"
	"time"

	"shikkha/internal/index/models"
	id "shikkha/pkg/domain"
)

// Store is an index backend. Missing entries are reported as
// sentinel.ErrNotFound.
type Store interface {
	Upsert(ctx context.Context, entry *models.Entry) error
	// Project atomically merges a ledger projection into the stored entry
	// (see models.Project) and reports whether anything changed.
	Project(ctx context.Context, entry *models.Entry) (bool, error)
	MarkRevoked(ctx context.Context, cid id.CertificateID, at time.Time) error
	SetOrphaned(ctx context.Context, cid id.CertificateID, orphaned bool, at time.Time) error
	FindByID(ctx context.Context, cid id.CertificateID) (*models.Entry, error)
	FindMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*models.Entry, error)
	// ListByIssuer orders entries newest first and reports the unpaged total.
	ListByIssuer(ctx context.Context, issuer id.Address, page models.Page) ([]*models.Entry, int, error)
	// ScanAfter walks entries in identity order, starting after the given identity.
	ScanAfter(ctx context.Context, after id.CertificateID, limit int) ([]*models.Entry, error)
	// Cursor returns 0 for a cursor that was never saved.
	Cursor(ctx context.Context, name string) (uint64, error)
	SaveCursor(ctx context.Context, name string, height uint64) error
}

func sortForListing(entries []*models.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.IssuedAt.Equal(b.IssuedAt) {
			return a.IssuedAt.After(b.IssuedAt)
		}
		return bytes.Compare(a.CertificateID[:], b.CertificateID[:]) < 0
	})
}

func sortByID(entries []*models.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].CertificateID[:], entries[j].CertificateID[:]) < 0
	})
}
