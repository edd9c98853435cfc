package certificate

import (
	"encoding/json"
	"time"

	id "shikkha/pkg/domain"
)

// EffectKind names a state change recorded in a receipt.
type EffectKind string

const (
	EffectIssued  EffectKind = "CertificateIssued"
	EffectRevoked EffectKind = "CertificateRevoked"
)

// Effect is one ordered, typed side effect of a committed ledger transaction.
// Payload is the JSON encoding of IssuedPayload or RevokedPayload.
type Effect struct {
	Kind    EffectKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Receipt is the outcome of one committed ledger write.
type Receipt struct {
	TxID      id.TxID    `json:"tx_id"`
	Height    uint64     `json:"height"`
	Timestamp time.Time  `json:"timestamp"`
	Caller    id.Address `json:"caller"`
	Effects   []Effect   `json:"effects"`
}

// Clone returns a copy that shares no memory with r.
func (r Receipt) Clone() Receipt {
	c := r
	if r.Effects != nil {
		c.Effects = make([]Effect, len(r.Effects))
		for i, e := range r.Effects {
			c.Effects[i] = Effect{Kind: e.Kind}
			if e.Payload != nil {
				c.Effects[i].Payload = append(json.RawMessage(nil), e.Payload...)
			}
		}
	}
	return c
}

// IssuedPayload is carried by a CertificateIssued effect.
type IssuedPayload struct {
	CertificateID string     `json:"certificate_id"`
	Issuer        id.Address `json:"issuer"`
	Sequence      uint64     `json:"sequence"`
	IssuedAt      int64      `json:"issued_at"`
	Fields        Fields     `json:"fields"`
}

// RevokedPayload is carried by a CertificateRevoked effect.
type RevokedPayload struct {
	CertificateID string `json:"certificate_id"`
	RevokedAt     int64  `json:"revoked_at"`
}

// IssuedEffect builds the admission effect for rec.
func IssuedEffect(rec *Record) (Effect, error) {
	payload, err := json.Marshal(IssuedPayload{
		CertificateID: rec.ID.String(),
		Issuer:        rec.Issuer,
		Sequence:      rec.Sequence,
		IssuedAt:      rec.IssuedAt.Unix(),
		Fields:        rec.Fields,
	})
	if err != nil {
		return Effect{}, err
	}
	return Effect{Kind: EffectIssued, Payload: payload}, nil
}

// RevokedEffect builds the revocation effect for certificate cid.
func RevokedEffect(cid id.CertificateID, at time.Time) (Effect, error) {
	payload, err := json.Marshal(RevokedPayload{
		CertificateID: cid.String(),
		RevokedAt:     at.Unix(),
	})
	if err != nil {
		return Effect{}, err
	}
	return Effect{Kind: EffectRevoked, Payload: payload}, nil
}
