package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

// InMemory keeps ledger state in process memory.
type InMemory struct {
	mu       sync.RWMutex
	admin    id.Address
	records  map[id.CertificateID]*certificate.Record
	receipts []certificate.Receipt
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.CertificateID]*certificate.Record)}
}

func (s *InMemory) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		base:    s,
		pending: make(map[id.CertificateID]*certificate.Record),
		height:  uint64(len(s.receipts)),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for cid, rec := range tx.pending {
		s.records[cid] = rec
	}
	s.receipts = append(s.receipts, tx.receipts...)
	return nil
}

func (s *InMemory) Find(ctx context.Context, cid id.CertificateID) (*certificate.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemory) FindMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*certificate.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.CertificateID]*certificate.Record, len(ids))
	for _, cid := range ids {
		if rec, ok := s.records[cid]; ok {
			out[cid] = cloneRecord(rec)
		}
	}
	return out, nil
}

func (s *InMemory) Height(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.receipts)), nil
}

func (s *InMemory) ReceiptsAfter(_ context.Context, after uint64, limit int) ([]certificate.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if after >= uint64(len(s.receipts)) {
		return nil, nil
	}
	end := uint64(len(s.receipts))
	if limit > 0 && after+uint64(limit) < end {
		end = after + uint64(limit)
	}
	out := make([]certificate.Receipt, 0, end-after)
	for _, receipt := range s.receipts[after:end] {
		out = append(out, receipt.Clone())
	}
	return out, nil
}

func (s *InMemory) InitAdmin(_ context.Context, admin id.Address) (id.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin.IsNil() {
		s.admin = admin
	}
	return s.admin, nil
}

func (s *InMemory) Admin(context.Context) (id.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.admin.IsNil() {
		return "", sentinel.ErrNotFound
	}
	return s.admin, nil
}

// memoryTx stages writes until Transact commits them. The store lock is held
// for the whole transaction, so reads of base are stable.
type memoryTx struct {
	base     *InMemory
	pending  map[id.CertificateID]*certificate.Record
	receipts []certificate.Receipt
	height   uint64
}

func (t *memoryTx) Height(context.Context) (uint64, error) {
	return t.height, nil
}

func (t *memoryTx) lookup(cid id.CertificateID) (*certificate.Record, bool) {
	if rec, ok := t.pending[cid]; ok {
		return rec, true
	}
	rec, ok := t.base.records[cid]
	return rec, ok
}

func (t *memoryTx) Find(_ context.Context, cid id.CertificateID) (*certificate.Record, error) {
	rec, ok := t.lookup(cid)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (t *memoryTx) Insert(_ context.Context, rec *certificate.Record) error {
	if _, ok := t.lookup(rec.ID); ok {
		return fmt.Errorf("certificate %s: %w", rec.ID, sentinel.ErrConflict)
	}
	t.pending[rec.ID] = cloneRecord(rec)
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, cid id.CertificateID, status certificate.Status, at time.Time) error {
	rec, ok := t.lookup(cid)
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := cloneRecord(rec)
	updated.Status = status
	if status == certificate.StatusRevoked {
		revokedAt := at
		updated.RevokedAt = &revokedAt
	}
	t.pending[cid] = updated
	return nil
}

func (t *memoryTx) AppendReceipt(_ context.Context, receipt *certificate.Receipt) error {
	if receipt.Height != t.height+1 {
		return fmt.Errorf("receipt height %d does not follow %d: %w", receipt.Height, t.height, sentinel.ErrInvalidState)
	}
	t.receipts = append(t.receipts, receipt.Clone())
	t.height = receipt.Height
	return nil
}

func cloneRecord(rec *certificate.Record) *certificate.Record {
	c := *rec
	if rec.RevokedAt != nil {
		at := *rec.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}
