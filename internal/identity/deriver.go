// Package identity derives certificate identities.
//
// An identity is Keccak-256 over a domain tag followed by length-prefixed
// fields in a fixed order: issuer, ledger sequence, issue time, then the six
// credential fields. Length prefixes keep field boundaries unambiguous, so two
// inputs that differ anywhere never share an encoding.
package identity

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/sha3"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
)

// DomainTag separates certificate identities from any other Keccak-256 use.
const DomainTag = "shikkha.certificate.v1"

// Context is the admission context mixed into every identity.
type Context struct {
	Issuer   id.Address
	Sequence uint64
	IssuedAt time.Time
}

// Deriver computes identities. It holds no state and is safe for concurrent use.
type Deriver struct{}

func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive returns the identity of fields admitted under ctx.
func (d *Deriver) Derive(fields certificate.Fields, ctx Context) id.CertificateID {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(Encode(fields, ctx))
	var out id.CertificateID
	copy(out[:], h.Sum(nil))
	return out
}

// Encode returns the exact preimage that Derive hashes.
func Encode(fields certificate.Fields, ctx Context) []byte {
	var seq, ts [8]byte
	binary.BigEndian.PutUint64(seq[:], ctx.Sequence)
	binary.BigEndian.PutUint64(ts[:], uint64(ctx.IssuedAt.Unix()))

	parts := [][]byte{
		[]byte(DomainTag),
		[]byte(ctx.Issuer.String()),
		seq[:],
		ts[:],
		[]byte(fields.StudentName),
		[]byte(fields.Course),
		[]byte(fields.Institution),
		[]byte(fields.Duration),
		[]byte(fields.Grade),
		[]byte(fields.CredentialType),
	}

	size := 0
	for _, p := range parts {
		size += 4 + len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}
	return buf
}
