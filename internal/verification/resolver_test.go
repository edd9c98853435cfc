package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"shikkha/internal/certificate"
	"shikkha/internal/docstore"
	"shikkha/internal/effects"
	indexModels "shikkha/internal/index/models"
	indexService "shikkha/internal/index/service"
	indexStore "shikkha/internal/index/store"
	"shikkha/internal/ledger"
	ledgerStore "shikkha/internal/ledger/store"
	"shikkha/internal/verification/metrics"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

const admin id.Address = "0xa11ce"

type ResolverSuite struct {
	suite.Suite
	registry  *ledger.Registry
	index     *indexService.Service
	documents *docstore.InMemory
	metrics   *metrics.Metrics
	resolver  *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	reg, err := ledger.New(context.Background(), ledgerStore.NewInMemory(), admin)
	s.Require().NoError(err)
	s.registry = reg
	s.index = indexService.New(indexStore.NewInMemory())
	s.documents = docstore.NewInMemory("https://gateway.example/ipfs/", 0)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.resolver = NewResolver(s.registry, s.index, s.documents, WithMetrics(s.metrics))
}

func fields(name string) certificate.Fields {
	return certificate.Fields{
		StudentName:    name,
		Course:         "CS101",
		Institution:    "State U",
		Duration:       "2020-2024",
		Grade:          "A",
		CredentialType: "Degree",
	}
}

func (s *ResolverSuite) admit(f certificate.Fields) id.CertificateID {
	receipt, err := s.registry.Admit(context.Background(), f, admin)
	s.Require().NoError(err)
	cid, err := effects.NewExtractor().Extract(receipt)
	s.Require().NoError(err)
	return cid
}

func (s *ResolverSuite) indexEntry(cid id.CertificateID, status indexModels.ClaimedStatus, locator id.DocumentLocator) {
	s.Require().NoError(s.index.Upsert(context.Background(), &indexModels.Entry{
		CertificateID:   cid,
		Issuer:          admin,
		Fields:          fields("Index Copy"),
		IssuedAt:        time.Now().UTC(),
		ClaimedStatus:   status,
		DocumentLocator: locator,
	}))
}

func (s *ResolverSuite) TestValidAttachesDocument() {
	ctx := context.Background()
	cid := s.admit(fields("Alice"))
	locator, err := s.documents.Put(ctx, []byte("%PDF-1.7 alice"))
	s.Require().NoError(err)
	s.indexEntry(cid, indexModels.ClaimedActive, locator)

	out := s.resolver.Verify(ctx, cid)

	s.Equal(StateValid, out.State)
	s.Equal(cid, out.CertificateID)
	s.Require().NotNil(out.Certificate)
	s.Equal("Alice", out.Certificate.Fields.StudentName, "fields come from the ledger, not the index")
	s.Equal(certificate.StatusActive, out.Certificate.Status)
	s.Equal(locator, out.DocumentLocator)
	s.Equal("https://gateway.example/ipfs/"+locator.String(), out.DocumentURL)
	s.NoError(out.Cause)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues("valid")), 0)
}

func (s *ResolverSuite) TestValidWithoutIndexEntry() {
	cid := s.admit(fields("Alice"))

	out := s.resolver.Verify(context.Background(), cid)

	s.Equal(StateValid, out.State)
	s.True(out.DocumentLocator.IsZero())
	s.Empty(out.DocumentURL)
}

func (s *ResolverSuite) TestIndexFailureDoesNotDowngradeValid() {
	cid := s.admit(fields("Alice"))
	resolver := NewResolver(s.registry, failingLocators{}, s.documents, WithMetrics(s.metrics))

	out := resolver.Verify(context.Background(), cid)

	s.Equal(StateValid, out.State)
	s.True(out.DocumentLocator.IsZero())
	s.NoError(out.Cause)
	s.InDelta(1, testutil.ToFloat64(s.metrics.LocatorFailures), 0)
}

func (s *ResolverSuite) TestDocumentURLFailureKeepsLocator() {
	cid := s.admit(fields("Alice"))
	s.indexEntry(cid, indexModels.ClaimedActive, "not-a-cid")

	out := s.resolver.Verify(context.Background(), cid)

	s.Equal(StateValid, out.State)
	s.Equal(id.DocumentLocator("not-a-cid"), out.DocumentLocator)
	s.Empty(out.DocumentURL)
}

func (s *ResolverSuite) TestRevokedDisclosesFields() {
	ctx := context.Background()
	cid := s.admit(fields("Alice"))
	_, err := s.registry.Revoke(ctx, cid, admin)
	s.Require().NoError(err)

	out := s.resolver.Verify(ctx, cid)

	s.Equal(StateRevoked, out.State)
	s.Require().NotNil(out.Certificate)
	s.Equal("Alice", out.Certificate.Fields.StudentName)
	s.Equal(certificate.StatusRevoked, out.Certificate.Status)
	s.NotNil(out.Certificate.RevokedAt)
	s.True(out.DocumentLocator.IsZero())
}

func (s *ResolverSuite) TestStaleActiveIndexEntryLosesToLedger() {
	ctx := context.Background()
	cid := s.admit(fields("Alice"))
	s.indexEntry(cid, indexModels.ClaimedActive, "")
	_, err := s.registry.Revoke(ctx, cid, admin)
	s.Require().NoError(err)

	out := s.resolver.Verify(ctx, cid)

	s.Equal(StateRevoked, out.State)
}

func (s *ResolverSuite) TestIndexOnlyMatchIsNotFound() {
	var ghost id.CertificateID
	ghost[0], ghost[31] = 0xfe, 0x01
	s.indexEntry(ghost, indexModels.ClaimedActive, "")

	out := s.resolver.Verify(context.Background(), ghost)

	s.Equal(StateNotFound, out.State)
	s.Nil(out.Certificate)
	s.NoError(out.Cause)
}

func (s *ResolverSuite) TestUnknownIsNotFoundNeverError() {
	var unknown id.CertificateID
	unknown[5] = 0x42

	out := s.resolver.Verify(context.Background(), unknown)

	s.Equal(StateNotFound, out.State)
	s.NoError(out.Cause)
}

func (s *ResolverSuite) TestLedgerFailureIsError() {
	cause := dErrors.Wrap(errors.New("connection refused"), dErrors.CodeUnavailable, "failed to read ledger")
	resolver := NewResolver(failingLedger{err: cause}, s.index, s.documents)

	var cid id.CertificateID
	cid[0] = 1
	out := resolver.Verify(context.Background(), cid)

	s.Equal(StateError, out.State)
	s.True(dErrors.HasCode(out.Cause, dErrors.CodeUnavailable))
	s.Nil(out.Certificate)
}

func (s *ResolverSuite) TestTimeoutIsError() {
	resolver := NewResolver(slowLedger{}, nil, nil, WithTimeout(10*time.Millisecond))

	var cid id.CertificateID
	cid[0] = 1
	out := resolver.Verify(context.Background(), cid)

	s.Equal(StateError, out.State)
	s.ErrorIs(out.Cause, context.DeadlineExceeded)
}

func (s *ResolverSuite) TestUnknownLedgerStatusIsError() {
	for _, status := range []certificate.Status{"bogus", ""} {
		s.Run("status "+string(status), func() {
			resolver := NewResolver(fixedLedger{rec: &certificate.Record{
				Fields: fields("Alice"),
				Issuer: admin,
				Status: status,
			}}, s.index, s.documents, WithMetrics(s.metrics))

			var cid id.CertificateID
			cid[0] = 7
			out := resolver.Verify(context.Background(), cid)

			s.Equal(StateError, out.State)
			s.True(dErrors.HasCode(out.Cause, dErrors.CodeDecode))
			s.Nil(out.Certificate)
			s.True(out.DocumentLocator.IsZero())
		})
	}
}

func (s *ResolverSuite) TestReusedAttemptIsError() {
	cid := s.admit(fields("Alice"))
	attempt := NewAttempt()
	s.Require().NoError(attempt.Start())

	out := s.resolver.resolve(context.Background(), attempt, cid)

	s.Equal(StateError, out.State)
	s.True(dErrors.HasCode(out.Cause, dErrors.CodeInvariantViolation))
	s.Nil(out.Certificate)
}

func TestAttemptTransitions(t *testing.T) {
	a := NewAttempt()
	assert.Equal(t, StateIdle, a.State())

	err := a.Resolve(StateValid)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	require.NoError(t, a.Start())
	assert.Equal(t, StatePending, a.State())
	assert.Error(t, a.Start())

	assert.Error(t, a.Resolve(StateIdle))
	assert.Error(t, a.Resolve(StatePending))
	require.NoError(t, a.Resolve(StateNotFound))
	assert.Equal(t, StateNotFound, a.State())

	assert.Error(t, a.Resolve(StateValid), "terminal states are final")
	assert.Equal(t, StateNotFound, a.State())
}

func TestStateIsTerminal(t *testing.T) {
	for _, st := range []State{StateValid, StateRevoked, StateNotFound, StateError} {
		assert.True(t, st.IsTerminal(), st)
	}
	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
}

type failingLedger struct{ err error }

func (f failingLedger) Lookup(context.Context, id.CertificateID) (*certificate.Record, bool, error) {
	return nil, false, f.err
}

type fixedLedger struct{ rec *certificate.Record }

func (f fixedLedger) Lookup(context.Context, id.CertificateID) (*certificate.Record, bool, error) {
	return f.rec, true, nil
}

type slowLedger struct{}

func (slowLedger) Lookup(ctx context.Context, _ id.CertificateID) (*certificate.Record, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

type failingLocators struct{}

func (failingLocators) Locator(context.Context, id.CertificateID) (id.DocumentLocator, error) {
	return "", dErrors.New(dErrors.CodeUnavailable, "index unreachable")
}
