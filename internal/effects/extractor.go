// Package effects recovers certificate identities and typed payloads from
// ledger receipts.
package effects

import (
	"encoding/json"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// Extractor reads admission effects. It holds no state.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the identity carried by the first CertificateIssued effect
// of receipt. A receipt without one fails with CodeEffectNotFound; a present
// but unreadable payload fails with CodeDecode. A zero identity is never
// returned with a nil error.
func (e *Extractor) Extract(receipt certificate.Receipt) (id.CertificateID, error) {
	for _, effect := range receipt.Effects {
		if effect.Kind != certificate.EffectIssued {
			continue
		}
		payload, err := DecodeIssued(effect)
		if err != nil {
			return id.CertificateID{}, err
		}
		return payload.ID, nil
	}
	return id.CertificateID{}, dErrors.New(dErrors.CodeEffectNotFound, "receipt carries no certificate admission effect")
}

// Issued is a decoded CertificateIssued effect.
type Issued struct {
	ID       id.CertificateID
	Issuer   id.Address
	Sequence uint64
	IssuedAt int64
	Fields   certificate.Fields
}

// Revoked is a decoded CertificateRevoked effect.
type Revoked struct {
	ID        id.CertificateID
	RevokedAt int64
}

// DecodeIssued parses an admission effect payload.
func DecodeIssued(effect certificate.Effect) (*Issued, error) {
	if effect.Kind != certificate.EffectIssued {
		return nil, dErrors.New(dErrors.CodeDecode, "effect is not a certificate admission")
	}
	var payload certificate.IssuedPayload
	if err := json.Unmarshal(effect.Payload, &payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecode, "malformed admission effect payload")
	}
	cid, err := decodeID(payload.CertificateID)
	if err != nil {
		return nil, err
	}
	return &Issued{
		ID:       cid,
		Issuer:   payload.Issuer,
		Sequence: payload.Sequence,
		IssuedAt: payload.IssuedAt,
		Fields:   payload.Fields,
	}, nil
}

// DecodeRevoked parses a revocation effect payload.
func DecodeRevoked(effect certificate.Effect) (*Revoked, error) {
	if effect.Kind != certificate.EffectRevoked {
		return nil, dErrors.New(dErrors.CodeDecode, "effect is not a certificate revocation")
	}
	var payload certificate.RevokedPayload
	if err := json.Unmarshal(effect.Payload, &payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecode, "malformed revocation effect payload")
	}
	cid, err := decodeID(payload.CertificateID)
	if err != nil {
		return nil, err
	}
	return &Revoked{ID: cid, RevokedAt: payload.RevokedAt}, nil
}

func decodeID(raw string) (id.CertificateID, error) {
	cid, err := id.ParseCertificateID(raw)
	if err != nil {
		return id.CertificateID{}, &dErrors.Error{
			Code:    dErrors.CodeDecode,
			Message: "effect carries an invalid certificate id",
			Err:     err,
		}
	}
	return cid, nil
}
