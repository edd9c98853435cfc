package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/strings"
	"shikkha/pkg/validation"
)

// IssueRequest is an admission submitted by an administrator.
type IssueRequest struct {
	Fields         certificate.Fields
	Document       []byte
	IdempotencyKey string
}

// Fingerprint identifies the submission content independent of its
// idempotency key. Fields should be normalized first.
func (r IssueRequest) Fingerprint() string {
	h := sha256.New()
	fields, _ := json.Marshal(r.Fields)
	h.Write(fields)
	doc := sha256.Sum256(r.Document)
	h.Write(doc[:])
	return hex.EncodeToString(h.Sum(nil))
}

// IssueResult describes a committed admission.
type IssueResult struct {
	CertificateID   id.CertificateID   `json:"certificate_id"`
	TxID            id.TxID            `json:"tx_id"`
	Height          uint64             `json:"height"`
	IssuedAt        time.Time          `json:"issued_at"`
	DocumentLocator id.DocumentLocator `json:"document_locator,omitempty"`
	DocumentURL     string             `json:"document_url,omitempty"`
	// Replayed is set when the result was returned for a repeated
	// idempotency key rather than a new admission.
	Replayed bool `json:"-"`
}

// RevokeResult describes a committed revocation.
type RevokeResult struct {
	CertificateID id.CertificateID
	TxID          id.TxID
	Height        uint64
	RevokedAt     time.Time
}

type fieldRules struct {
	StudentName    string `validate:"required,notblank,min=2,max=100,person_name"`
	Course         string `validate:"required,notblank,min=2,max=200"`
	Institution    string `validate:"required,notblank,min=3,max=200"`
	Duration       string `validate:"required,notblank,min=1,max=50"`
	Grade          string `validate:"required,notblank,min=1,max=20"`
	CredentialType string `validate:"required,oneof=Degree Diploma Certificate Transcript"`
}

// NormalizeFields trims surrounding whitespace from every field. Identity
// derivation sees the normalized values.
func NormalizeFields(f *certificate.Fields) {
	strings.TrimFields(&f.StudentName, &f.Course, &f.Institution, &f.Duration, &f.Grade, &f.CredentialType)
}

// ValidateFields applies the admission form rules.
func ValidateFields(f certificate.Fields) error {
	return validation.Validate(fieldRules{
		StudentName:    f.StudentName,
		Course:         f.Course,
		Institution:    f.Institution,
		Duration:       f.Duration,
		Grade:          f.Grade,
		CredentialType: f.CredentialType,
	})
}
