package effects

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

func sampleRecord() *certificate.Record {
	cid, _ := id.ParseCertificateID("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000001")
	return &certificate.Record{
		ID:       cid,
		Fields:   certificate.Fields{StudentName: "Nusrat Jahan", Course: "Physics", CredentialType: "Degree"},
		Issuer:   "0xadmin",
		Sequence: 7,
		IssuedAt: time.Unix(1700000000, 0),
		Status:   certificate.StatusActive,
	}
}

func TestExtract(t *testing.T) {
	x := NewExtractor()
	rec := sampleRecord()
	issued, err := certificate.IssuedEffect(rec)
	require.NoError(t, err)
	revoked, err := certificate.RevokedEffect(rec.ID, time.Unix(1700000100, 0))
	require.NoError(t, err)

	t.Run("returns the admitted identity", func(t *testing.T) {
		cid, err := x.Extract(certificate.Receipt{Effects: []certificate.Effect{issued}})
		require.NoError(t, err)
		assert.Equal(t, rec.ID, cid)
	})

	t.Run("skips unrelated effects before the admission", func(t *testing.T) {
		cid, err := x.Extract(certificate.Receipt{Effects: []certificate.Effect{
			{Kind: "Transfer", Payload: json.RawMessage(`{}`)},
			revoked,
			issued,
		}})
		require.NoError(t, err)
		assert.Equal(t, rec.ID, cid)
	})

	t.Run("first admission effect wins", func(t *testing.T) {
		other := sampleRecord()
		other.ID[5] = 0x55
		second, err := certificate.IssuedEffect(other)
		require.NoError(t, err)

		cid, err := x.Extract(certificate.Receipt{Effects: []certificate.Effect{issued, second}})
		require.NoError(t, err)
		assert.Equal(t, rec.ID, cid)
	})

	t.Run("no admission effect", func(t *testing.T) {
		for name, receipt := range map[string]certificate.Receipt{
			"empty":        {},
			"only revoked": {Effects: []certificate.Effect{revoked}},
		} {
			t.Run(name, func(t *testing.T) {
				cid, err := x.Extract(receipt)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeEffectNotFound))
				assert.True(t, cid.IsZero())
			})
		}
	})

	t.Run("malformed admission effect is a decode error", func(t *testing.T) {
		payloads := map[string]string{
			"not json":      `{"certificate_id":`,
			"missing id":    `{"issuer":"0xadmin"}`,
			"short id":      `{"certificate_id":"0xabcd"}`,
			"zero id":       `{"certificate_id":"0x0000000000000000000000000000000000000000000000000000000000000000"}`,
			"non-hex id":    `{"certificate_id":"0xzz00000000000000000000000000000000000000000000000000000000000000"}`,
			"wrong id type": `{"certificate_id":42}`,
		}
		for name, payload := range payloads {
			t.Run(name, func(t *testing.T) {
				cid, err := x.Extract(certificate.Receipt{Effects: []certificate.Effect{
					{Kind: certificate.EffectIssued, Payload: json.RawMessage(payload)},
				}})
				assert.True(t, dErrors.HasCode(err, dErrors.CodeDecode), "got %v", err)
				assert.True(t, cid.IsZero())
			})
		}
	})
}

func TestDecodePayloads(t *testing.T) {
	rec := sampleRecord()

	issued, err := certificate.IssuedEffect(rec)
	require.NoError(t, err)
	got, err := DecodeIssued(issued)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Fields, got.Fields)
	assert.Equal(t, uint64(7), got.Sequence)
	assert.Equal(t, rec.IssuedAt.Unix(), got.IssuedAt)

	revoked, err := certificate.RevokedEffect(rec.ID, time.Unix(1700000100, 0))
	require.NoError(t, err)
	r, err := DecodeRevoked(revoked)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, r.ID)
	assert.Equal(t, int64(1700000100), r.RevokedAt)

	_, err = DecodeRevoked(issued)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecode))
	_, err = DecodeIssued(revoked)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecode))
}
