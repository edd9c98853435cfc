package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shikkha/internal/index/models"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

func entry(b byte) *models.Entry {
	var cid id.CertificateID
	cid[0] = b
	cid[31] = 7
	return &models.Entry{
		CertificateID: cid,
		Issuer:        "0xissuer",
		IssuedAt:      time.Unix(1700000000+int64(b), 0).UTC(),
		ClaimedStatus: models.ClaimedActive,
	}
}

func TestInMemory_MissingEntries(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	missing := entry(1).CertificateID

	_, err := s.FindByID(ctx, missing)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, s.MarkRevoked(ctx, missing, time.Now()), sentinel.ErrNotFound)
	assert.ErrorIs(t, s.SetOrphaned(ctx, missing, true, time.Now()), sentinel.ErrNotFound)
}

func TestInMemory_ScanAfterWalksInIdentityOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for _, b := range []byte{9, 3, 7, 1, 5} {
		require.NoError(t, s.Upsert(ctx, entry(b)))
	}

	var seen []byte
	var after id.CertificateID
	for {
		page, err := s.ScanAfter(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			seen = append(seen, e.CertificateID[0])
		}
		after = page[len(page)-1].CertificateID
	}
	assert.Equal(t, []byte{1, 3, 5, 7, 9}, seen)
}

func TestInMemory_Cursor(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	h, err := s.Cursor(ctx, "sweeper")
	require.NoError(t, err)
	assert.Zero(t, h)

	require.NoError(t, s.SaveCursor(ctx, "sweeper", 42))
	h, err = s.Cursor(ctx, "sweeper")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)
}

func TestInMemory_ProjectKeepsIndexOnlyData(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	stored := entry(1)
	stored.Issuer = "0xwallet"
	stored.DocumentLocator = "bafkreidoc"
	stored.ClaimedStatus = models.ClaimedRevoked
	stored.Orphaned = true
	require.NoError(t, s.Upsert(ctx, stored))

	projected := entry(1)
	projected.Fields.StudentName = "From Ledger"
	changed, err := s.Project(ctx, projected)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.FindByID(ctx, projected.CertificateID)
	require.NoError(t, err)
	assert.Equal(t, "From Ledger", got.Fields.StudentName)
	assert.Equal(t, id.Address("0xwallet"), got.Issuer)
	assert.Equal(t, id.DocumentLocator("bafkreidoc"), got.DocumentLocator)
	assert.Equal(t, models.ClaimedRevoked, got.ClaimedStatus)
	assert.False(t, got.Orphaned)

	changed, err = s.Project(ctx, projected)
	require.NoError(t, err)
	assert.False(t, changed, "projecting the same data twice changes nothing")
}

func TestInMemory_ProjectInsertsMissingEntry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	changed, err := s.Project(ctx, entry(2))
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.FindByID(ctx, entry(2).CertificateID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimedActive, got.ClaimedStatus)
	assert.True(t, got.DocumentLocator.IsZero())
}

func TestInMemory_ProjectNeverDropsAConcurrentLocator(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		s := NewInMemory()
		withDoc := entry(3)
		withDoc.DocumentLocator = "bafkreidoc"

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = s.Upsert(ctx, withDoc)
		}()
		_, err := s.Project(ctx, entry(3))
		require.NoError(t, err)
		<-done

		got, err := s.FindByID(ctx, withDoc.CertificateID)
		require.NoError(t, err)
		assert.Equal(t, id.DocumentLocator("bafkreidoc"), got.DocumentLocator)
	}
}
