package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"shikkha/internal/institution/models"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.Address]*models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.Address]*models.Profile)}
}

func (s *InMemory) Save(_ context.Context, p *models.Profile) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.Address(strings.ToLower(p.Wallet.String()))
	stored := *p
	stored.Wallet = key
	if existing, ok := s.profiles[key]; ok {
		stored.RegisteredAt = existing.RegisteredAt
	}
	s.profiles[key] = &stored
	out := stored
	return &out, nil
}

func (s *InMemory) FindByWallet(_ context.Context, wallet id.Address) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id.Address(strings.ToLower(wallet.String()))]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *InMemory) List(_ context.Context, limit, offset int) ([]*models.Profile, int, error) {
	s.mu.RLock()
	all := make([]*models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		cp := *p
		all = append(all, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].Wallet < all[j].Wallet
	})
	total := len(all)
	if offset >= total {
		return []*models.Profile{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
