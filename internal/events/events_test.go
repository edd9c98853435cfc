package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"shikkha/internal/certificate"
	"shikkha/internal/effects"
	"shikkha/internal/events/metrics"
	indexModels "shikkha/internal/index/models"
	"shikkha/internal/index/reconcile"
	indexStore "shikkha/internal/index/store"
	"shikkha/internal/ledger"
	ledgerStore "shikkha/internal/ledger/store"
	"shikkha/internal/platform/kafka/consumer"
	"shikkha/internal/platform/kafka/producer"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

const admin id.Address = "0xa11ce"

type EventsSuite struct {
	suite.Suite
	registry *ledger.Registry
	index    *indexStore.InMemory
	producer *fakeProducer
	metrics  *metrics.Metrics
	relay    *Relay
	handler  *Handler
}

func TestEventsSuite(t *testing.T) {
	suite.Run(t, new(EventsSuite))
}

func (s *EventsSuite) SetupTest() {
	reg, err := ledger.New(context.Background(), ledgerStore.NewInMemory(), admin)
	s.Require().NoError(err)
	s.registry = reg
	s.index = indexStore.NewInMemory()
	s.producer = &fakeProducer{}
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.relay = NewRelay(s.registry, s.producer, s.index,
		WithTopic("effects"),
		WithBatchSize(2),
		WithMetrics(s.metrics),
		WithLogger(logger),
	)
	s.handler = NewHandler(reconcile.NewProjector(s.index), s.metrics, logger)
}

func (s *EventsSuite) admit(name string) id.CertificateID {
	receipt, err := s.registry.Admit(context.Background(), certificate.Fields{
		StudentName:    name,
		Course:         "CS101",
		Institution:    "State U",
		Duration:       "2020-2024",
		Grade:          "A",
		CredentialType: "Degree",
	}, admin)
	s.Require().NoError(err)
	cid, err := effects.NewExtractor().Extract(receipt)
	s.Require().NoError(err)
	return cid
}

func (s *EventsSuite) TestRelayPublishesInOrder() {
	ctx := context.Background()
	alice := s.admit("Alice")
	s.admit("Bob")
	_, err := s.registry.Revoke(ctx, alice, admin)
	s.Require().NoError(err)

	n, err := s.relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	sent := s.producer.sent
	s.Require().Len(sent, 3)
	s.Equal("effects", sent[0].Topic)
	s.Equal(alice.String(), string(sent[0].Key))
	s.Equal(string(certificate.EffectIssued), sent[0].Headers[HeaderEffectKind])
	s.Equal(alice.String(), string(sent[2].Key), "a certificate's effects share a partition key")
	s.Equal(string(certificate.EffectRevoked), sent[2].Headers[HeaderEffectKind])

	cursor, err := s.index.Cursor(ctx, RelayCursor)
	s.Require().NoError(err)
	s.Equal(uint64(3), cursor)
	s.InDelta(3, testutil.ToFloat64(s.metrics.Published), 0)
	s.InDelta(0, testutil.ToFloat64(s.metrics.RelayLag), 0)

	n, err = s.relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n)
	s.Len(s.producer.sent, 3)
}

func (s *EventsSuite) TestRelayKeepsCursorOnFailure() {
	ctx := context.Background()
	s.admit("Alice")
	s.admit("Bob")
	s.producer.failAfter = 1

	n, err := s.relay.RunOnce(ctx)
	s.Error(err)
	s.Equal(1, n)
	cursor, err := s.index.Cursor(ctx, RelayCursor)
	s.Require().NoError(err)
	s.Equal(uint64(1), cursor)
	s.InDelta(1, testutil.ToFloat64(s.metrics.PublishFailures), 0)

	s.producer.failAfter = 0
	n, err = s.relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *EventsSuite) TestRoundTripProjectsIndex() {
	ctx := context.Background()
	alice := s.admit("Alice")
	_, err := s.registry.Revoke(ctx, alice, admin)
	s.Require().NoError(err)
	_, err = s.relay.RunOnce(ctx)
	s.Require().NoError(err)

	for i, rec := range s.producer.sent {
		s.Require().NoError(s.handler.Handle(ctx, &consumer.Message{Offset: int64(i), Value: rec.Value}))
	}
	// redelivery is harmless
	s.Require().NoError(s.handler.Handle(ctx, &consumer.Message{Value: s.producer.sent[0].Value}))

	entry, err := s.index.FindByID(ctx, alice)
	s.Require().NoError(err)
	s.Equal("Alice", entry.Fields.StudentName)
	s.Equal(indexModels.ClaimedRevoked, entry.ClaimedStatus)
	s.InDelta(3, testutil.ToFloat64(s.metrics.Consumed.WithLabelValues("applied")), 0)
}

func (s *EventsSuite) TestHandlerSkipsMalformedMessages() {
	ctx := context.Background()

	s.NoError(s.handler.Handle(ctx, &consumer.Message{Value: []byte("{not json")}))
	s.NoError(s.handler.Handle(ctx, &consumer.Message{Value: []byte(`{"kind":"CertificateIssued","height":1,"payload":{"certificate_id":"0x12"}}`)}))
	s.InDelta(2, testutil.ToFloat64(s.metrics.Consumed.WithLabelValues("skipped")), 0)
}

func (s *EventsSuite) TestHandlerRetriesStoreFailures() {
	handler := NewHandler(failingApplier{}, s.metrics, nil)
	s.admit("Alice")
	_, err := s.relay.RunOnce(context.Background())
	s.Require().NoError(err)

	err = handler.Handle(context.Background(), &consumer.Message{Value: s.producer.sent[0].Value})
	s.Error(err)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Consumed.WithLabelValues("retry")), 0)
}

func TestDecodeRejectsIncompleteMessages(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"CertificateIssued"}`))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecode))
}

func TestKeyFallsBackToTxID(t *testing.T) {
	txID := id.NewTxID()
	m := Message{TxID: txID, Height: 1, Kind: "Other", Payload: []byte(`{}`)}
	assert.Equal(t, txID.String(), m.Key())
}

type fakeProducer struct {
	mu        sync.Mutex
	sent      []*producer.Message
	calls     int
	failAfter int
}

func (p *fakeProducer) Produce(_ context.Context, msgs ...*producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAfter > 0 && p.calls >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.calls++
	p.sent = append(p.sent, msgs...)
	return nil
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, certificate.Receipt) error {
	return errors.New("index unavailable")
}
