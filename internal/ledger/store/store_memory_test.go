package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

func testRecord(b byte, seq uint64) *certificate.Record {
	var cid id.CertificateID
	cid[0] = b
	cid[31] = 1
	return &certificate.Record{
		ID:       cid,
		Fields:   certificate.Fields{StudentName: "Ada Lovelace", Course: "Analysis", CredentialType: "Degree"},
		Issuer:   "0xadmin",
		Sequence: seq,
		IssuedAt: time.Unix(1700000000, 0).UTC(),
		Status:   certificate.StatusActive,
	}
}

func admit(ctx context.Context, s *InMemory, rec *certificate.Record) error {
	return s.Transact(ctx, func(ctx context.Context, tx Tx) error {
		h, err := tx.Height(ctx)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		return tx.AppendReceipt(ctx, &certificate.Receipt{TxID: id.NewTxID(), Height: h + 1})
	})
}

func TestInMemory_TransactCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	rec := testRecord(1, 1)

	require.NoError(t, admit(ctx, s, rec))

	got, err := s.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fields, got.Fields)
	h, err := s.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h)

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		other := testRecord(2, 2)
		boom := errors.New("boom")
		err := s.Transact(ctx, func(ctx context.Context, tx Tx) error {
			require.NoError(t, tx.Insert(ctx, other))
			require.NoError(t, tx.AppendReceipt(ctx, &certificate.Receipt{Height: 2}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Find(ctx, other.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		h, _ := s.Height(ctx)
		assert.Equal(t, uint64(1), h)
	})

	t.Run("duplicate identity conflicts", func(t *testing.T) {
		err := admit(ctx, s, testRecord(1, 9))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("receipt height must follow the head", func(t *testing.T) {
		err := s.Transact(ctx, func(ctx context.Context, tx Tx) error {
			return tx.AppendReceipt(ctx, &certificate.Receipt{Height: 5})
		})
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}

func TestInMemory_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	rec := testRecord(3, 1)
	require.NoError(t, admit(ctx, s, rec))

	at := time.Unix(1700000100, 0).UTC()
	err := s.Transact(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateStatus(ctx, rec.ID, certificate.StatusRevoked, at)
	})
	require.NoError(t, err)

	got, err := s.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusRevoked, got.Status)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(at))

	var missing id.CertificateID
	missing[5] = 7
	err = s.Transact(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateStatus(ctx, missing, certificate.StatusRevoked, at)
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemory_FindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	rec := testRecord(4, 1)
	require.NoError(t, admit(ctx, s, rec))

	got, err := s.Find(ctx, rec.ID)
	require.NoError(t, err)
	got.Status = certificate.StatusRevoked

	again, err := s.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusActive, again.Status)
}

func TestInMemory_FindMany(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	a, b := testRecord(5, 1), testRecord(6, 2)
	require.NoError(t, admit(ctx, s, a))
	require.NoError(t, admit(ctx, s, b))

	var unknown id.CertificateID
	unknown[9] = 9
	got, err := s.FindMany(ctx, []id.CertificateID{a.ID, unknown, b.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, a.ID)
	assert.Contains(t, got, b.ID)
}

func TestInMemory_ReceiptsAfter(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for i := byte(1); i <= 5; i++ {
		require.NoError(t, admit(ctx, s, testRecord(i+10, uint64(i))))
	}

	got, err := s.ReceiptsAfter(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Height)
	assert.Equal(t, uint64(3), got[1].Height)

	got, err = s.ReceiptsAfter(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(5), got[1].Height)

	got, err = s.ReceiptsAfter(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemory_Admin(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	_, err := s.Admin(ctx)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	admin, err := s.InitAdmin(ctx, "0xfirst")
	require.NoError(t, err)
	assert.Equal(t, id.Address("0xfirst"), admin)

	admin, err = s.InitAdmin(ctx, "0xsecond")
	require.NoError(t, err)
	assert.Equal(t, id.Address("0xfirst"), admin, "administrator is fixed once persisted")
}
