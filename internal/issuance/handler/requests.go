package handler

import (
	"shikkha/internal/certificate"
	"shikkha/internal/issuance/models"
)

// IssueCertificateRequest is the body of POST /admin/certificates.
// Document is the optional rendered certificate, base64 encoded in JSON.
type IssueCertificateRequest struct {
	StudentName    string `json:"student_name"`
	Course         string `json:"course"`
	Institution    string `json:"institution"`
	Duration       string `json:"duration"`
	Grade          string `json:"grade"`
	CredentialType string `json:"credential_type"`
	Document       []byte `json:"document,omitempty"`
}

func (r *IssueCertificateRequest) Fields() certificate.Fields {
	return certificate.Fields{
		StudentName:    r.StudentName,
		Course:         r.Course,
		Institution:    r.Institution,
		Duration:       r.Duration,
		Grade:          r.Grade,
		CredentialType: r.CredentialType,
	}
}

func (r *IssueCertificateRequest) Normalize() {
	f := r.Fields()
	models.NormalizeFields(&f)
	r.StudentName, r.Course, r.Institution = f.StudentName, f.Course, f.Institution
	r.Duration, r.Grade, r.CredentialType = f.Duration, f.Grade, f.CredentialType
}

func (r *IssueCertificateRequest) Validate() error {
	return models.ValidateFields(r.Fields())
}
