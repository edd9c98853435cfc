// Package fabric runs the certificate registry as Hyperledger Fabric
// chaincode. World state holds the administrator, one record per certificate
// and the receipt log; a chaincode transaction is the unit of commit.
package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"shikkha/internal/certificate"
	"shikkha/internal/ledger/store"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/sentinel"
)

const (
	keyAdmin      = "meta~admin"
	keyHeight     = "meta~height"
	prefixRecord  = "cert~"
	prefixReceipt = "receipt~"
)

// Stub is the part of shim.ChaincodeStubInterface the store needs.
type Stub interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error)
}

// StubStore implements store.Store over chaincode world state. Fabric reads
// do not observe writes made earlier in the same transaction, so a Tx keeps
// its own overlay and only flushes it once fn succeeds.
type StubStore struct {
	stub Stub
}

func NewStubStore(stub Stub) *StubStore {
	return &StubStore{stub: stub}
}

type stateRecord struct {
	ID        string             `json:"id"`
	Fields    certificate.Fields `json:"fields"`
	Issuer    id.Address         `json:"issuer"`
	Sequence  uint64             `json:"sequence"`
	IssuedAt  int64              `json:"issued_at"`
	Status    certificate.Status `json:"status"`
	RevokedAt *int64             `json:"revoked_at,omitempty"`
}

func toState(rec *certificate.Record) stateRecord {
	s := stateRecord{
		ID:       rec.ID.String(),
		Fields:   rec.Fields,
		Issuer:   rec.Issuer,
		Sequence: rec.Sequence,
		IssuedAt: rec.IssuedAt.Unix(),
		Status:   rec.Status,
	}
	if rec.RevokedAt != nil {
		at := rec.RevokedAt.Unix()
		s.RevokedAt = &at
	}
	return s
}

func (s stateRecord) record() (*certificate.Record, error) {
	cid, err := id.ParseCertificateID(s.ID)
	if err != nil {
		return nil, fmt.Errorf("record id %q: %w", s.ID, sentinel.ErrCorrupt)
	}
	if !s.Status.IsValid() {
		return nil, fmt.Errorf("record %s has status %q: %w", s.ID, s.Status, sentinel.ErrCorrupt)
	}
	rec := &certificate.Record{
		ID:       cid,
		Fields:   s.Fields,
		Issuer:   s.Issuer,
		Sequence: s.Sequence,
		IssuedAt: time.Unix(s.IssuedAt, 0).UTC(),
		Status:   s.Status,
	}
	if s.RevokedAt != nil {
		at := time.Unix(*s.RevokedAt, 0).UTC()
		rec.RevokedAt = &at
	}
	return rec, nil
}

func recordKey(cid id.CertificateID) string {
	return prefixRecord + cid.String()
}

// receiptKey zero-pads the height so range scans return receipts in order.
func receiptKey(height uint64) string {
	return fmt.Sprintf("%s%020d", prefixReceipt, height)
}

func (s *StubStore) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &stubTx{base: s, writes: make(map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, key := range tx.order {
		if err := s.stub.PutState(key, tx.writes[key]); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}

func (s *StubStore) Find(_ context.Context, cid id.CertificateID) (*certificate.Record, error) {
	return s.find(s.stub.GetState, cid)
}

func (s *StubStore) find(get func(string) ([]byte, error), cid id.CertificateID) (*certificate.Record, error) {
	raw, err := get(recordKey(cid))
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if raw == nil {
		return nil, sentinel.ErrNotFound
	}
	var st stateRecord
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode record %s: %w: %w", cid, sentinel.ErrCorrupt, err)
	}
	return st.record()
}

func (s *StubStore) FindMany(ctx context.Context, ids []id.CertificateID) (map[id.CertificateID]*certificate.Record, error) {
	out := make(map[id.CertificateID]*certificate.Record, len(ids))
	for _, cid := range ids {
		rec, err := s.Find(ctx, cid)
		if err == sentinel.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[cid] = rec
	}
	return out, nil
}

func (s *StubStore) Height(context.Context) (uint64, error) {
	return readHeight(s.stub.GetState)
}

func readHeight(get func(string) ([]byte, error)) (uint64, error) {
	raw, err := get(keyHeight)
	if err != nil {
		return 0, fmt.Errorf("get height: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	var h uint64
	if err := json.Unmarshal(raw, &h); err != nil {
		return 0, fmt.Errorf("decode height: %w", err)
	}
	return h, nil
}

func (s *StubStore) ReceiptsAfter(_ context.Context, after uint64, limit int) ([]certificate.Receipt, error) {
	iter, err := s.stub.GetStateByRange(receiptKey(after+1), prefixReceipt+"~")
	if err != nil {
		return nil, fmt.Errorf("range receipts: %w", err)
	}
	defer iter.Close()

	var out []certificate.Receipt
	for iter.HasNext() {
		if limit > 0 && len(out) >= limit {
			break
		}
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate receipts: %w", err)
		}
		var receipt certificate.Receipt
		if err := json.Unmarshal(kv.GetValue(), &receipt); err != nil {
			return nil, fmt.Errorf("decode receipt %s: %w", kv.GetKey(), err)
		}
		out = append(out, receipt)
	}
	return out, nil
}

func (s *StubStore) InitAdmin(ctx context.Context, admin id.Address) (id.Address, error) {
	persisted, err := s.Admin(ctx)
	if err == nil {
		return persisted, nil
	}
	if err != sentinel.ErrNotFound {
		return "", err
	}
	if err := s.stub.PutState(keyAdmin, []byte(admin.String())); err != nil {
		return "", fmt.Errorf("put admin: %w", err)
	}
	return admin, nil
}

func (s *StubStore) Admin(context.Context) (id.Address, error) {
	raw, err := s.stub.GetState(keyAdmin)
	if err != nil {
		return "", fmt.Errorf("get admin: %w", err)
	}
	if raw == nil {
		return "", sentinel.ErrNotFound
	}
	return id.Address(raw), nil
}

// stubTx stages writes in insertion order so PutState calls are deterministic
// across endorsing peers.
type stubTx struct {
	base   *StubStore
	writes map[string][]byte
	order  []string
}

func (t *stubTx) get(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return v, nil
	}
	return t.base.stub.GetState(key)
}

func (t *stubTx) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = raw
	return nil
}

func (t *stubTx) Height(context.Context) (uint64, error) {
	return readHeight(t.get)
}

func (t *stubTx) Find(_ context.Context, cid id.CertificateID) (*certificate.Record, error) {
	return t.base.find(t.get, cid)
}

func (t *stubTx) Insert(_ context.Context, rec *certificate.Record) error {
	_, err := t.base.find(t.get, rec.ID)
	if err == nil {
		return fmt.Errorf("certificate %s: %w", rec.ID, sentinel.ErrConflict)
	}
	if err != sentinel.ErrNotFound {
		return err
	}
	return t.put(recordKey(rec.ID), toState(rec))
}

func (t *stubTx) UpdateStatus(_ context.Context, cid id.CertificateID, status certificate.Status, at time.Time) error {
	rec, err := t.base.find(t.get, cid)
	if err != nil {
		return err
	}
	rec.Status = status
	if status == certificate.StatusRevoked {
		rec.RevokedAt = &at
	}
	return t.put(recordKey(cid), toState(rec))
}

func (t *stubTx) AppendReceipt(ctx context.Context, receipt *certificate.Receipt) error {
	height, err := t.Height(ctx)
	if err != nil {
		return err
	}
	if receipt.Height != height+1 {
		return fmt.Errorf("receipt height %d does not follow %d: %w", receipt.Height, height, sentinel.ErrInvalidState)
	}
	if err := t.put(receiptKey(receipt.Height), receipt); err != nil {
		return err
	}
	return t.put(keyHeight, receipt.Height)
}
