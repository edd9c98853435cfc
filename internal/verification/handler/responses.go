package handler

import (
	"time"

	"shikkha/internal/verification"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/httputil"
)

// VerifyResponse is the HTTP response for GET /certificates/{id}/verify.
// Outcome is always present.
type VerifyResponse struct {
	Outcome          string               `json:"outcome"`
	CertificateID    string               `json:"certificate_id,omitempty"`
	Certificate      *CertificateResponse `json:"certificate,omitempty"`
	DocumentLocator  string               `json:"document_locator,omitempty"`
	DocumentURL      string               `json:"document_url,omitempty"`
	Error            string               `json:"error,omitempty"`
	ErrorDescription string               `json:"error_description,omitempty"`
}

type CertificateResponse struct {
	StudentName    string     `json:"student_name"`
	Course         string     `json:"course"`
	Institution    string     `json:"institution"`
	Duration       string     `json:"duration"`
	Grade          string     `json:"grade"`
	CredentialType string     `json:"credential_type"`
	Issuer         string     `json:"issuer"`
	IssuedAt       time.Time  `json:"issued_at"`
	Status         string     `json:"status"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

// FromOutcome converts a resolver outcome to its HTTP response.
func FromOutcome(o verification.Outcome) *VerifyResponse {
	resp := &VerifyResponse{
		Outcome:         o.State.String(),
		CertificateID:   o.CertificateID.String(),
		DocumentLocator: o.DocumentLocator.String(),
		DocumentURL:     o.DocumentURL,
	}
	if c := o.Certificate; c != nil {
		resp.Certificate = &CertificateResponse{
			StudentName:    c.Fields.StudentName,
			Course:         c.Fields.Course,
			Institution:    c.Fields.Institution,
			Duration:       c.Fields.Duration,
			Grade:          c.Fields.Grade,
			CredentialType: c.Fields.CredentialType,
			Issuer:         c.Issuer.String(),
			IssuedAt:       c.IssuedAt,
			Status:         string(c.Status),
			RevokedAt:      c.RevokedAt,
		}
	}
	if o.State == verification.StateError {
		code := dErrors.CodeOf(o.Cause)
		if code == dErrors.CodeInternal {
			code = dErrors.CodeUnavailable
		}
		resp.Error = httputil.DomainCodeToHTTPCode(code)
		resp.ErrorDescription = "certificate status is unknown: the ledger could not be reached"
	}
	return resp
}
