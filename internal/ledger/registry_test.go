package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shikkha/internal/certificate"
	"shikkha/internal/effects"
	"shikkha/internal/identity"
	"shikkha/internal/ledger/store"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

const (
	testAdmin    id.Address = "0xa11ce"
	testOutsider id.Address = "0xb0b"
)

type RegistrySuite struct {
	suite.Suite
	store     *store.InMemory
	registry  *Registry
	extractor *effects.Extractor
	now       time.Time
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reg, err := New(context.Background(), s.store, testAdmin,
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.registry = reg
	s.extractor = effects.NewExtractor()
}

func sampleFields() certificate.Fields {
	return certificate.Fields{
		StudentName:    "Rahim Uddin",
		Course:         "Computer Science",
		Institution:    "Dhaka University",
		Duration:       "4 years",
		Grade:          "A+",
		CredentialType: "Degree",
	}
}

func (s *RegistrySuite) admit(fields certificate.Fields) id.CertificateID {
	receipt, err := s.registry.Admit(context.Background(), fields, testAdmin)
	s.Require().NoError(err)
	cid, err := s.extractor.Extract(receipt)
	s.Require().NoError(err)
	return cid
}

func (s *RegistrySuite) height() uint64 {
	h, err := s.registry.Height(context.Background())
	s.Require().NoError(err)
	return h
}

func (s *RegistrySuite) TestAdmit() {
	ctx := context.Background()

	s.Run("admin admission creates an active record", func() {
		receipt, err := s.registry.Admit(ctx, sampleFields(), testAdmin)
		s.Require().NoError(err)
		s.Equal(uint64(1), receipt.Height)
		s.False(receipt.TxID.IsNil())
		s.Require().Len(receipt.Effects, 1)
		s.Equal(certificate.EffectIssued, receipt.Effects[0].Kind)

		cid, err := s.extractor.Extract(receipt)
		s.Require().NoError(err)

		rec, found, err := s.registry.Lookup(ctx, cid)
		s.Require().NoError(err)
		s.Require().True(found)
		s.Equal(certificate.StatusActive, rec.Status)
		s.Equal(sampleFields(), rec.Fields)
		s.Equal(testAdmin, rec.Issuer)
		s.True(rec.IssuedAt.Equal(s.now))

		expected := identity.NewDeriver().Derive(sampleFields(), identity.Context{
			Issuer:   testAdmin,
			Sequence: 1,
			IssuedAt: s.now,
		})
		s.Equal(expected, cid)
	})

	s.Run("admin match ignores case", func() {
		_, err := s.registry.Admit(ctx, sampleFields(), "0xA11CE")
		s.NoError(err)
	})

	s.Run("non-admin admission is unauthorized and changes nothing", func() {
		before := s.height()
		_, err := s.registry.Admit(ctx, sampleFields(), testOutsider)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(before, s.height())
	})

	s.Run("empty caller is unauthorized", func() {
		_, err := s.registry.Admit(ctx, sampleFields(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *RegistrySuite) TestIdenticalFieldsYieldDistinctIdentities() {
	first := s.admit(sampleFields())
	second := s.admit(sampleFields())
	s.NotEqual(first, second)
}

func (s *RegistrySuite) TestRevokingOneTwinLeavesTheOtherActive() {
	ctx := context.Background()
	first := s.admit(sampleFields())
	second := s.admit(sampleFields())

	_, err := s.registry.Revoke(ctx, first, testAdmin)
	s.Require().NoError(err)

	rec, found, err := s.registry.Lookup(ctx, second)
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal(certificate.StatusActive, rec.Status)
	s.Nil(rec.RevokedAt)
}

func (s *RegistrySuite) TestRevoke() {
	ctx := context.Background()
	cid := s.admit(sampleFields())

	s.Run("non-admin revocation is unauthorized and leaves record active", func() {
		_, err := s.registry.Revoke(ctx, cid, testOutsider)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		rec, found, err := s.registry.Lookup(ctx, cid)
		s.Require().NoError(err)
		s.Require().True(found)
		s.Equal(certificate.StatusActive, rec.Status)
	})

	s.Run("admin revocation moves record to revoked", func() {
		s.now = s.now.Add(time.Hour)
		receipt, err := s.registry.Revoke(ctx, cid, testAdmin)
		s.Require().NoError(err)
		s.Require().Len(receipt.Effects, 1)
		s.Equal(certificate.EffectRevoked, receipt.Effects[0].Kind)

		rec, found, err := s.registry.Lookup(ctx, cid)
		s.Require().NoError(err)
		s.Require().True(found)
		s.Equal(certificate.StatusRevoked, rec.Status)
		s.Require().NotNil(rec.RevokedAt)
		s.True(rec.RevokedAt.Equal(s.now))
	})

	s.Run("second revocation fails with already revoked", func() {
		before := s.height()
		_, err := s.registry.Revoke(ctx, cid, testAdmin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
		s.Equal(before, s.height())

		rec, _, err := s.registry.Lookup(ctx, cid)
		s.Require().NoError(err)
		s.Equal(certificate.StatusRevoked, rec.Status)
	})

	s.Run("unknown identity is not found", func() {
		var unknown id.CertificateID
		unknown[0] = 0x42
		_, err := s.registry.Revoke(ctx, unknown, testAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("zero identity is invalid input", func() {
		_, err := s.registry.Revoke(ctx, id.CertificateID{}, testAdmin)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *RegistrySuite) TestLookupUnknownIsNotAnError() {
	var unknown id.CertificateID
	unknown[3] = 3
	rec, found, err := s.registry.Lookup(context.Background(), unknown)
	s.NoError(err)
	s.False(found)
	s.Nil(rec)
}

func (s *RegistrySuite) TestConcurrentAdmissionsSerialize() {
	const writers = 32
	var wg sync.WaitGroup
	ids := make([]id.CertificateID, writers)
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipt, err := s.registry.Admit(context.Background(), sampleFields(), testAdmin)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i], errs[i] = s.extractor.Extract(receipt)
		}(i)
	}
	wg.Wait()

	seen := make(map[id.CertificateID]bool, writers)
	for i := range ids {
		s.Require().NoError(errs[i])
		s.False(seen[ids[i]], "identity issued twice")
		seen[ids[i]] = true
	}
	s.Equal(uint64(writers), s.height())

	receipts, err := s.registry.Receipts(context.Background(), 0, writers)
	s.Require().NoError(err)
	for i, r := range receipts {
		s.Equal(uint64(i+1), r.Height)
	}
}

func (s *RegistrySuite) TestConcurrentRevocationsSucceedOnce() {
	const revokers = 16
	cid := s.admit(sampleFields())
	before := s.height()

	var wg sync.WaitGroup
	errs := make([]error, revokers)
	for i := 0; i < revokers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.registry.Revoke(context.Background(), cid, testAdmin)
		}(i)
	}
	wg.Wait()

	succeeded, alreadyRevoked := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case dErrors.HasCode(err, dErrors.CodeAlreadyRevoked):
			alreadyRevoked++
		default:
			s.Failf("unexpected revocation error", "%v", err)
		}
	}
	s.Equal(1, succeeded)
	s.Equal(revokers-1, alreadyRevoked)
	s.Equal(before+1, s.height())
}

func (s *RegistrySuite) TestReceiptsCannotBeChangedByCallers() {
	ctx := context.Background()
	receipt, err := s.registry.Admit(ctx, sampleFields(), testAdmin)
	s.Require().NoError(err)
	original := string(receipt.Effects[0].Payload)

	receipt.Effects[0].Kind = "Tampered"
	receipt.Effects[0].Payload[0] = 'X'

	stored, err := s.registry.Receipts(ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(certificate.EffectIssued, stored[0].Effects[0].Kind)
	s.Equal(original, string(stored[0].Effects[0].Payload))

	stored[0].Effects[0].Kind = "Tampered"
	again, err := s.registry.Receipts(ctx, 0, 10)
	s.Require().NoError(err)
	s.Equal(certificate.EffectIssued, again[0].Effects[0].Kind)
}

func (s *RegistrySuite) TestCurrentAdmin() {
	s.Equal(testAdmin, s.registry.CurrentAdmin())
	s.True(s.registry.IsAdmin("0xA11CE"))
	s.False(s.registry.IsAdmin(testOutsider))
}

func (s *RegistrySuite) TestReopen() {
	ctx := context.Background()

	s.Run("open restores the persisted administrator", func() {
		reg, err := Open(ctx, s.store)
		s.Require().NoError(err)
		s.Equal(testAdmin, reg.CurrentAdmin())
	})

	s.Run("new with another administrator conflicts", func() {
		_, err := New(ctx, s.store, testOutsider)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("open of an empty ledger is not found", func() {
		_, err := Open(ctx, store.NewInMemory())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty administrator is rejected", func() {
		_, err := New(ctx, store.NewInMemory(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// unreachableStore fails every read and write as a lost connection would.
type unreachableStore struct {
	*store.InMemory
}

var errConnection = errors.New("connection refused")

func (u unreachableStore) Find(context.Context, id.CertificateID) (*certificate.Record, error) {
	return nil, errConnection
}

func (u unreachableStore) Transact(context.Context, func(context.Context, store.Tx) error) error {
	return errConnection
}

func (s *RegistrySuite) TestStoreFailuresAreTransportErrors() {
	ctx := context.Background()
	st := unreachableStore{InMemory: store.NewInMemory()}
	reg, err := New(ctx, st, testAdmin)
	s.Require().NoError(err)

	_, found, err := reg.Lookup(ctx, id.CertificateID{1})
	s.False(found)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = reg.Admit(ctx, sampleFields(), testAdmin)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
