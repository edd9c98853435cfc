// Package models defines index entries.
//
// The index is an advisory, eventually consistent projection used for listing
// and for locating stored documents. An Entry's ClaimedStatus is what the
// index last heard, never a statement of validity: only the ledger decides
// whether a certificate is valid.
package models

import (
	"time"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
)

// ClaimedStatus is the status the index last recorded for a certificate.
type ClaimedStatus string

const (
	ClaimedActive  ClaimedStatus = "active"
	ClaimedRevoked ClaimedStatus = "revoked"
)

// Entry is one certificate as the index last saw it.
type Entry struct {
	CertificateID   id.CertificateID   `json:"certificate_id"`
	Issuer          id.Address         `json:"issuer"`
	Fields          certificate.Fields `json:"fields"`
	IssuedAt        time.Time          `json:"issued_at"`
	ClaimedStatus   ClaimedStatus      `json:"claimed_status"`
	DocumentLocator id.DocumentLocator `json:"document_locator,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Orphaned        bool               `json:"orphaned"`
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Clone returns a copy that shares no mutable state with e.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// Project merges a ledger projection into existing, which may be nil.
// Ledger-owned data comes from projected. The issuing wallet and document
// locator already recorded are kept, and a revoked claim stays revoked.
// changed is false when the merge leaves existing as it was.
func Project(existing, projected *Entry) (merged *Entry, changed bool) {
	merged = projected.Clone()
	merged.Orphaned = false
	if existing == nil {
		return merged, true
	}
	if existing.Issuer != "" {
		merged.Issuer = existing.Issuer
	}
	if !existing.DocumentLocator.IsZero() {
		merged.DocumentLocator = existing.DocumentLocator
	}
	if existing.ClaimedStatus == ClaimedRevoked {
		merged.ClaimedStatus = ClaimedRevoked
	}
	if sameContent(existing, merged) {
		return existing.Clone(), false
	}
	return merged, true
}

func sameContent(a, b *Entry) bool {
	return a.Issuer == b.Issuer &&
		a.Fields == b.Fields &&
		a.IssuedAt.Equal(b.IssuedAt) &&
		a.ClaimedStatus == b.ClaimedStatus &&
		a.DocumentLocator == b.DocumentLocator &&
		a.Orphaned == b.Orphaned
}
