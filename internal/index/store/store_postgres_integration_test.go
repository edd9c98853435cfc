//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shikkha/internal/certificate"
	"shikkha/internal/index/models"
	"shikkha/internal/index/store"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
	"shikkha/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateModuleTables(context.Background()))
}

func newEntry(b byte, issuer id.Address, issuedAt time.Time) *models.Entry {
	var cid id.CertificateID
	cid[0] = b
	cid[31] = 3
	return &models.Entry{
		CertificateID:   cid,
		Issuer:          issuer,
		Fields:          certificate.Fields{StudentName: "Farhana", Course: "Biology", Institution: "CU", Duration: "3 years", Grade: "B", CredentialType: "Degree"},
		IssuedAt:        issuedAt,
		ClaimedStatus:   models.ClaimedActive,
		DocumentLocator: "bafkreiexample",
		UpdatedAt:       issuedAt,
	}
}

func (s *PostgresStoreSuite) TestUpsertReplaces() {
	ctx := context.Background()
	e := newEntry(1, "0xissuer", time.Unix(1700000000, 0).UTC())
	s.Require().NoError(s.store.Upsert(ctx, e))

	e.Fields.Grade = "A"
	s.Require().NoError(s.store.Upsert(ctx, e))

	got, err := s.store.FindByID(ctx, e.CertificateID)
	s.Require().NoError(err)
	s.Equal("A", got.Fields.Grade)
	s.Equal(e.DocumentLocator, got.DocumentLocator)
}

func (s *PostgresStoreSuite) TestProjectKeepsIndexOnlyData() {
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()
	stored := newEntry(4, "0xwallet", at)
	s.Require().NoError(s.store.Upsert(ctx, stored))
	s.Require().NoError(s.store.MarkRevoked(ctx, stored.CertificateID, at))

	projected := newEntry(4, "0xadmin", at)
	projected.DocumentLocator = ""
	projected.Fields.Grade = "A+"
	changed, err := s.store.Project(ctx, projected)
	s.Require().NoError(err)
	s.True(changed)

	got, err := s.store.FindByID(ctx, stored.CertificateID)
	s.Require().NoError(err)
	s.Equal("A+", got.Fields.Grade)
	s.Equal(id.Address("0xwallet"), got.Issuer)
	s.Equal(stored.DocumentLocator, got.DocumentLocator)
	s.Equal(models.ClaimedRevoked, got.ClaimedStatus)

	changed, err = s.store.Project(ctx, projected)
	s.Require().NoError(err)
	s.False(changed)

	fresh := newEntry(5, "0xadmin", at)
	fresh.DocumentLocator = ""
	changed, err = s.store.Project(ctx, fresh)
	s.Require().NoError(err)
	s.True(changed)
}

func (s *PostgresStoreSuite) TestMarkRevokedAndOrphaned() {
	ctx := context.Background()
	e := newEntry(2, "0xissuer", time.Unix(1700000000, 0).UTC())
	s.Require().NoError(s.store.Upsert(ctx, e))

	s.Require().NoError(s.store.MarkRevoked(ctx, e.CertificateID, time.Now()))
	s.Require().NoError(s.store.SetOrphaned(ctx, e.CertificateID, true, time.Now()))

	got, err := s.store.FindByID(ctx, e.CertificateID)
	s.Require().NoError(err)
	s.Equal(models.ClaimedRevoked, got.ClaimedStatus)
	s.True(got.Orphaned)

	missing := newEntry(3, "0xissuer", time.Now()).CertificateID
	s.ErrorIs(s.store.MarkRevoked(ctx, missing, time.Now()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByIssuerPaginates() {
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	for i := byte(1); i <= 4; i++ {
		s.Require().NoError(s.store.Upsert(ctx, newEntry(i, "0xissuer", base.Add(time.Duration(i)*time.Minute))))
	}
	s.Require().NoError(s.store.Upsert(ctx, newEntry(9, "0xother", base)))

	entries, total, err := s.store.ListByIssuer(ctx, "0xissuer", models.Page{Limit: 3, Offset: 1})
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Require().Len(entries, 3)
	s.Equal(byte(3), entries[0].CertificateID[0])
	s.Equal(byte(1), entries[2].CertificateID[0])
}

func (s *PostgresStoreSuite) TestFindManyAndScan() {
	ctx := context.Background()
	for _, b := range []byte{5, 1, 3} {
		s.Require().NoError(s.store.Upsert(ctx, newEntry(b, "0xissuer", time.Now().UTC())))
	}

	found, err := s.store.FindMany(ctx, []id.CertificateID{newEntry(1, "", time.Now()).CertificateID, newEntry(2, "", time.Now()).CertificateID})
	s.Require().NoError(err)
	s.Len(found, 1)

	page, err := s.store.ScanAfter(ctx, newEntry(1, "", time.Now()).CertificateID, 10)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(byte(3), page[0].CertificateID[0])
	s.Equal(byte(5), page[1].CertificateID[0])
}

func (s *PostgresStoreSuite) TestCursor() {
	ctx := context.Background()
	h, err := s.store.Cursor(ctx, "sweeper")
	s.Require().NoError(err)
	s.Zero(h)

	s.Require().NoError(s.store.SaveCursor(ctx, "sweeper", 10))
	s.Require().NoError(s.store.SaveCursor(ctx, "sweeper", 12))
	h, err = s.store.Cursor(ctx, "sweeper")
	s.Require().NoError(err)
	s.Equal(uint64(12), h)
}
