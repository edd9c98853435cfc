package handler

import (
	"time"

	indexModels "shikkha/internal/index/models"
	"shikkha/internal/issuance/models"
)

type IssueResponse struct {
	CertificateID   string    `json:"certificate_id"`
	TxID            string    `json:"tx_id"`
	Height          uint64    `json:"height"`
	IssuedAt        time.Time `json:"issued_at"`
	DocumentLocator string    `json:"document_locator,omitempty"`
	DocumentURL     string    `json:"document_url,omitempty"`
}

func FromIssueResult(r *models.IssueResult) *IssueResponse {
	return &IssueResponse{
		CertificateID:   r.CertificateID.String(),
		TxID:            r.TxID.String(),
		Height:          r.Height,
		IssuedAt:        r.IssuedAt,
		DocumentLocator: r.DocumentLocator.String(),
		DocumentURL:     r.DocumentURL,
	}
}

type RevokeResponse struct {
	CertificateID string    `json:"certificate_id"`
	TxID          string    `json:"tx_id"`
	Height        uint64    `json:"height"`
	RevokedAt     time.Time `json:"revoked_at"`
}

func FromRevokeResult(r *models.RevokeResult) *RevokeResponse {
	return &RevokeResponse{
		CertificateID: r.CertificateID.String(),
		TxID:          r.TxID.String(),
		Height:        r.Height,
		RevokedAt:     r.RevokedAt,
	}
}

// ListResponse is the advisory listing. claimed_status is what the index
// last recorded; only the verify endpoint reports ledger status.
type ListResponse struct {
	Certificates []EntryResponse `json:"certificates"`
	Total        int             `json:"total"`
	Limit        int             `json:"limit"`
	Offset       int             `json:"offset"`
}

type EntryResponse struct {
	CertificateID   string    `json:"certificate_id"`
	StudentName     string    `json:"student_name"`
	Course          string    `json:"course"`
	Institution     string    `json:"institution"`
	Duration        string    `json:"duration"`
	Grade           string    `json:"grade"`
	CredentialType  string    `json:"credential_type"`
	IssuedAt        time.Time `json:"issued_at"`
	ClaimedStatus   string    `json:"claimed_status"`
	DocumentLocator string    `json:"document_locator,omitempty"`
	Orphaned        bool      `json:"orphaned,omitempty"`
}

func FromEntries(entries []*indexModels.Entry, total int, page indexModels.Page) *ListResponse {
	resp := &ListResponse{
		Certificates: make([]EntryResponse, 0, len(entries)),
		Total:        total,
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	for _, e := range entries {
		resp.Certificates = append(resp.Certificates, EntryResponse{
			CertificateID:   e.CertificateID.String(),
			StudentName:     e.Fields.StudentName,
			Course:          e.Fields.Course,
			Institution:     e.Fields.Institution,
			Duration:        e.Fields.Duration,
			Grade:           e.Fields.Grade,
			CredentialType:  e.Fields.CredentialType,
			IssuedAt:        e.IssuedAt,
			ClaimedStatus:   string(e.ClaimedStatus),
			DocumentLocator: e.DocumentLocator.String(),
			Orphaned:        e.Orphaned,
		})
	}
	return resp
}

type WhoAmIResponse struct {
	Caller  string `json:"caller"`
	Admin   string `json:"admin"`
	IsAdmin bool   `json:"is_admin"`
}
