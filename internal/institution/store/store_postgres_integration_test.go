//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shikkha/internal/institution/models"
	"shikkha/internal/institution/store"
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

func profile(wallet id.Address, name string, at time.Time) *models.Profile {
	return &models.Profile{
		Wallet:       wallet,
		Name:         name,
		Website:      "https://example.edu",
		LogoURL:      "https://example.edu/logo.png",
		RegisteredAt: at,
		UpdatedAt:    at,
	}
}

func (s *PostgresStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	saved, err := s.store.Save(ctx, profile("0xABC", "State University", at))
	s.Require().NoError(err)
	s.Equal(id.Address("0xabc"), saved.Wallet)

	got, err := s.store.FindByWallet(ctx, "0xAbc")
	s.Require().NoError(err)
	s.Equal("State University", got.Name)
	s.True(at.Equal(got.RegisteredAt))

	_, err = s.store.FindByWallet(ctx, "0xmissing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSaveKeepsRegistrationTime() {
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(24 * time.Hour)

	_, err := s.store.Save(ctx, profile("0xabc", "State University", first))
	s.Require().NoError(err)
	saved, err := s.store.Save(ctx, profile("0xabc", "State University Renamed", later))
	s.Require().NoError(err)

	s.Equal("State University Renamed", saved.Name)
	s.True(first.Equal(saved.RegisteredAt))
	s.True(later.Equal(saved.UpdatedAt))
}

func (s *PostgresStoreSuite) TestList() {
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for wallet, name := range map[id.Address]string{"0x1": "Beta", "0x2": "Alpha", "0x3": "Gamma"} {
		_, err := s.store.Save(ctx, profile(wallet, name, at))
		s.Require().NoError(err)
	}

	page, total, err := s.store.List(ctx, 2, 1)
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(page, 2)
	s.Equal("Beta", page[0].Name)
	s.Equal("Gamma", page[1].Name)
}
