package store

import (
	"bytes"
	"context"
	"sync"
	"time"

	"shikkha/internal/index/models"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

// InMemory is a process-local index.
type InMemory struct {
	mu      sync.RWMutex
	entries map[id.CertificateID]*models.Entry
	cursors map[string]uint64
}

func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[id.CertificateID]*models.Entry),
		cursors: make(map[string]uint64),
	}
}

func (s *InMemory) Upsert(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.CertificateID] = entry.Clone()
	return nil
}

func (s *InMemory) Project(_ context.Context, entry *models.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, changed := models.Project(s.entries[entry.CertificateID], entry)
	if changed {
		s.entries[entry.CertificateID] = merged
	}
	return changed, nil
}

func (s *InMemory) MarkRevoked(_ context.Context, cid id.CertificateID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[cid]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.ClaimedStatus = models.ClaimedRevoked
	e.UpdatedAt = at
	return nil
}

func (s *InMemory) SetOrphaned(_ context.Context, cid id.CertificateID, orphaned bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[cid]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.Orphaned = orphaned
	e.UpdatedAt = at
	return nil
}

func (s *InMemory) FindByID(_ context.Context, cid id.CertificateID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *InMemory) FindMany(_ context.Context, ids []id.CertificateID) (map[id.CertificateID]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.CertificateID]*models.Entry, len(ids))
	for _, cid := range ids {
		if e, ok := s.entries[cid]; ok {
			out[cid] = e.Clone()
		}
	}
	return out, nil
}

func (s *InMemory) ListByIssuer(_ context.Context, issuer id.Address, page models.Page) ([]*models.Entry, int, error) {
	s.mu.RLock()
	var matched []*models.Entry
	for _, e := range s.entries {
		if e.Issuer.Equal(issuer) {
			matched = append(matched, e.Clone())
		}
	}
	s.mu.RUnlock()

	sortForListing(matched)
	total := len(matched)
	if page.Offset >= total {
		return []*models.Entry{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return matched[page.Offset:end], total, nil
}

func (s *InMemory) ScanAfter(_ context.Context, after id.CertificateID, limit int) ([]*models.Entry, error) {
	s.mu.RLock()
	var out []*models.Entry
	for cid, e := range s.entries {
		if bytes.Compare(cid[:], after[:]) > 0 {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sortByID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Cursor(_ context.Context, name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name], nil
}

func (s *InMemory) SaveCursor(_ context.Context, name string, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = height
	return nil
}
