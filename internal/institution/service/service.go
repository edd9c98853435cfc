// Package service manages the self-asserted profiles issuers attach to their
// wallets. A wallet may only register or update its own profile.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	indexModels "shikkha/internal/index/models"
	"shikkha/internal/institution/models"
	"shikkha/internal/institution/store"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/sentinel"
)

type Service struct {
	store  store.Store
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates or replaces the caller's profile.
func (s *Service) Register(ctx context.Context, caller id.Address, req models.RegisterRequest) (*models.Profile, error) {
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	saved, err := s.store.Save(ctx, &models.Profile{
		Wallet:       caller,
		Name:         req.Name,
		Website:      req.Website,
		LogoURL:      req.LogoURL,
		RegisteredAt: now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save institution")
	}
	s.logger.InfoContext(ctx, "institution registered",
		"wallet", saved.Wallet.String(),
		"name", saved.Name,
	)
	return saved, nil
}

func (s *Service) Get(ctx context.Context, wallet id.Address) (*models.Profile, error) {
	p, err := s.store.FindByWallet(ctx, wallet)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read institution")
	}
	return p, nil
}

// List pages through registered institutions using the index paging limits.
func (s *Service) List(ctx context.Context, page indexModels.Page) ([]*models.Profile, int, error) {
	page = page.Normalize()
	profiles, total, err := s.store.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list institutions")
	}
	return profiles, total, nil
}
