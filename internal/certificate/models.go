// Package certificate holds the credential and ledger record types shared by
// the ledger, the index, issuance and verification.
package certificate

import (
	"time"

	id "shikkha/pkg/domain"
)

// Fields is the credential content an administrator submits.
type Fields struct {
	StudentName    string `json:"student_name"`
	Course         string `json:"course"`
	Institution    string `json:"institution"`
	Duration       string `json:"duration"`
	Grade          string `json:"grade"`
	CredentialType string `json:"credential_type"`
}

// Status is the ledger lifecycle state of an admitted certificate.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// IsValid reports whether s is a known lifecycle state.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusRevoked
}

// Record is the authoritative ledger state of one certificate.
type Record struct {
	ID        id.CertificateID
	Fields    Fields
	Issuer    id.Address
	Sequence  uint64
	IssuedAt  time.Time
	Status    Status
	RevokedAt *time.Time
}
