package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "shikkha/pkg/domain-errors"
)

// CertificateIDSize is the byte length of a certificate identity (a 256-bit digest).
const CertificateIDSize = 32

// certificateIDPrefix marks the hex wire form of a certificate identity.
const certificateIDPrefix = "0x"

// CertificateID is the immutable identity of an admitted certificate.
// The zero value is never a valid identity.
type CertificateID [CertificateIDSize]byte

// ParseCertificateID parses the wire form "0x" followed by 64 hex characters.
// Surrounding whitespace is ignored and hex digits may be in either case.
func ParseCertificateID(s string) (CertificateID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id is required")
	}
	if len(s) != len(certificateIDPrefix)+2*CertificateIDSize {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be 0x followed by 64 hex characters")
	}
	if !strings.HasPrefix(s, certificateIDPrefix) {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id must start with 0x")
	}
	var id CertificateID
	if _, err := hex.Decode(id[:], []byte(s[2:])); err != nil {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id contains non-hex characters")
	}
	if id.IsZero() {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id must not be zero")
	}
	return id, nil
}

// CertificateIDFromBytes copies a raw 32-byte digest into a CertificateID.
func CertificateIDFromBytes(b []byte) (CertificateID, error) {
	if len(b) != CertificateIDSize {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be 32 bytes")
	}
	var id CertificateID
	copy(id[:], b)
	if id.IsZero() {
		return CertificateID{}, dErrors.New(dErrors.CodeInvalidInput, "certificate id must not be zero")
	}
	return id, nil
}

// String returns the lowercase wire form.
func (id CertificateID) String() string {
	return certificateIDPrefix + hex.EncodeToString(id[:])
}

// IsZero reports whether id is the unset value.
func (id CertificateID) IsZero() bool {
	return id == CertificateID{}
}

// Bytes returns a copy of the raw digest.
func (id CertificateID) Bytes() []byte {
	b := make([]byte, CertificateIDSize)
	copy(b, id[:])
	return b
}

func (id CertificateID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *CertificateID) UnmarshalText(b []byte) error {
	parsed, err := ParseCertificateID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Address identifies a caller, issuer or administrator.
// Addresses compare case-insensitively and are stored lowercased.
type Address string

// ParseAddress trims and lowercases an address, rejecting empty values.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if len(s) > 256 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is too long")
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}

func (a Address) IsNil() bool {
	return a == ""
}

// Equal compares two addresses ignoring case.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

// DocumentLocator is the content identifier of a stored certificate document.
type DocumentLocator string

func (l DocumentLocator) String() string {
	return string(l)
}

func (l DocumentLocator) IsZero() bool {
	return l == ""
}

// TxID identifies one committed ledger transaction.
type TxID uuid.UUID

func NewTxID() TxID {
	return TxID(uuid.New())
}

// ParseTxID parses a transaction identifier, rejecting the nil UUID.
func ParseTxID(s string) (TxID, error) {
	if s == "" {
		return TxID{}, dErrors.New(dErrors.CodeInvalidInput, "transaction id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return TxID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid transaction id")
	}
	if u == uuid.Nil {
		return TxID{}, dErrors.New(dErrors.CodeInvalidInput, "transaction id must not be nil")
	}
	return TxID(u), nil
}

func (id TxID) String() string {
	return uuid.UUID(id).String()
}

func (id TxID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id TxID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TxID) UnmarshalText(b []byte) error {
	parsed, err := ParseTxID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
