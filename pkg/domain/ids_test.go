package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "shikkha/pkg/domain-errors"
)

const sampleID = "0x5f16f4c7f149ac4f9510d9cf8cf384038ad348b3bcdc01915f95de12df9d1b02"

// TestParseCertificateID_Invariants covers the public verification entry point:
// anything other than 0x plus 64 hex characters is rejected as invalid input.
func TestParseCertificateID_Invariants(t *testing.T) {
	t.Run("accepts canonical form", func(t *testing.T) {
		id, err := ParseCertificateID(sampleID)
		require.NoError(t, err)
		assert.Equal(t, sampleID, id.String())
	})

	t.Run("accepts uppercase hex and surrounding whitespace", func(t *testing.T) {
		id, err := ParseCertificateID("  0x" + strings.ToUpper(sampleID[2:]) + "\n")
		require.NoError(t, err)
		assert.Equal(t, sampleID, id.String(), "wire form is always lowercase")
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing prefix", sampleID[2:] + "00"},
		{"uppercase prefix", "0X" + sampleID[2:]},
		{"too short", sampleID[:65]},
		{"too long", sampleID + "0"},
		{"non-hex character", "0x" + strings.Repeat("g", 64)},
		{"zero identity", "0x" + strings.Repeat("0", 64)},
		{"sql injection", "0x'; DROP TABLE ledger_records;--"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParseCertificateID(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestCertificateIDFromBytes(t *testing.T) {
	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := CertificateIDFromBytes(make([]byte, 31))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero digest", func(t *testing.T) {
		_, err := CertificateIDFromBytes(make([]byte, 32))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("bytes are copied", func(t *testing.T) {
		raw := make([]byte, 32)
		raw[0] = 0xab
		id, err := CertificateIDFromBytes(raw)
		require.NoError(t, err)
		raw[0] = 0x00
		assert.Equal(t, byte(0xab), id.Bytes()[0])
	})
}

func TestCertificateID_JSON(t *testing.T) {
	id, err := ParseCertificateID(sampleID)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]CertificateID{"id": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+sampleID+`"}`, string(body))

	var decoded struct {
		ID CertificateID `json:"id"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"id":"0x1234"}`), &decoded))
}

func TestParseAddress(t *testing.T) {
	t.Run("normalizes case and whitespace", func(t *testing.T) {
		addr, err := ParseAddress("  0xAbCdEf ")
		require.NoError(t, err)
		assert.Equal(t, Address("0xabcdef"), addr)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseAddress("   ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("equality ignores case", func(t *testing.T) {
		assert.True(t, Address("0xABC").Equal("0xabc"))
		assert.False(t, Address("0xabc").Equal("0xabd"))
	})
}

func TestParseTxID(t *testing.T) {
	_, err := ParseTxID(uuid.Nil.String())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	id := NewTxID()
	parsed, err := ParseTxID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}
