package store

import (
	"context"

	"shikkha/internal/institution/models"
	id "shikkha/pkg/domain"
)

// Store persists institution profiles keyed by wallet.
type Store interface {
	// Save inserts or replaces a profile. RegisteredAt of an existing
	// profile is kept.
	Save(ctx context.Context, p *models.Profile) (*models.Profile, error)
	// FindByWallet returns sentinel.ErrNotFound for an unknown wallet.
	FindByWallet(ctx context.Context, wallet id.Address) (*models.Profile, error)
	// List returns profiles ordered by name.
	List(ctx context.Context, limit, offset int) ([]*models.Profile, int, error)
}
