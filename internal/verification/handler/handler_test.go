package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shikkha/internal/certificate"
	"shikkha/internal/verification"
	"shikkha/internal/verification/handler/mocks"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Resolver
type VerifyHandlerSuite struct {
	suite.Suite
	resolver *mocks.MockResolver
	router   chi.Router
	cid      id.CertificateID
}

func TestVerifyHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerifyHandlerSuite))
}

func (s *VerifyHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.resolver = mocks.NewMockResolver(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.resolver, logger).Register(s.router)
	s.cid[0], s.cid[31] = 0xab, 0x01
}

func (s *VerifyHandlerSuite) get(path string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func (s *VerifyHandlerSuite) TestValid() {
	issuedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.resolver.EXPECT().Verify(gomock.Any(), s.cid).Return(verification.Outcome{
		State:         verification.StateValid,
		CertificateID: s.cid,
		Certificate: &verification.CertificateView{
			Fields:   certificate.Fields{StudentName: "Alice", Course: "CS101", CredentialType: "Degree"},
			Issuer:   "0xadmin",
			IssuedAt: issuedAt,
			Status:   certificate.StatusActive,
		},
		DocumentLocator: "bafkreigh",
		DocumentURL:     "https://gw.example/ipfs/bafkreigh",
	})

	w, body := s.get("/certificates/" + s.cid.String() + "/verify")

	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), "valid", body["outcome"])
	assert.Equal(s.T(), s.cid.String(), body["certificate_id"])
	assert.Equal(s.T(), "https://gw.example/ipfs/bafkreigh", body["document_url"])
	cert := body["certificate"].(map[string]any)
	assert.Equal(s.T(), "Alice", cert["student_name"])
	assert.Equal(s.T(), "active", cert["status"])
	assert.NotContains(s.T(), body, "error")
}

func (s *VerifyHandlerSuite) TestRevokedStillDisclosesFields() {
	revokedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.resolver.EXPECT().Verify(gomock.Any(), s.cid).Return(verification.Outcome{
		State:         verification.StateRevoked,
		CertificateID: s.cid,
		Certificate: &verification.CertificateView{
			Fields:    certificate.Fields{StudentName: "Alice"},
			Status:    certificate.StatusRevoked,
			RevokedAt: &revokedAt,
		},
	})

	w, body := s.get("/certificates/" + s.cid.String() + "/verify")

	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), "revoked", body["outcome"])
	cert := body["certificate"].(map[string]any)
	assert.Equal(s.T(), "Alice", cert["student_name"])
	assert.Equal(s.T(), "revoked", cert["status"])
	assert.NotEmpty(s.T(), cert["revoked_at"])
}

func (s *VerifyHandlerSuite) TestNotFound() {
	s.resolver.EXPECT().Verify(gomock.Any(), s.cid).Return(verification.Outcome{
		State:         verification.StateNotFound,
		CertificateID: s.cid,
	})

	w, body := s.get("/certificates/" + s.cid.String() + "/verify")

	assert.Equal(s.T(), http.StatusNotFound, w.Code)
	assert.Equal(s.T(), "not_found", body["outcome"])
	assert.NotContains(s.T(), body, "certificate")
}

func (s *VerifyHandlerSuite) TestLedgerUnreachable() {
	s.resolver.EXPECT().Verify(gomock.Any(), s.cid).Return(verification.Outcome{
		State:         verification.StateError,
		CertificateID: s.cid,
		Cause:         dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeUnavailable, "failed to read ledger"),
	})

	w, body := s.get("/certificates/" + s.cid.String() + "/verify")

	assert.Equal(s.T(), http.StatusServiceUnavailable, w.Code)
	assert.Equal(s.T(), "error", body["outcome"])
	assert.Equal(s.T(), "transport_error", body["error"])
	assert.NotContains(s.T(), body["error_description"], "dial tcp")
}

func (s *VerifyHandlerSuite) TestUppercaseHexAccepted() {
	upper := "0xAB000000000000000000000000000000000000000000000000000000000000" + "01"
	s.resolver.EXPECT().Verify(gomock.Any(), s.cid).Return(verification.Outcome{
		State:         verification.StateNotFound,
		CertificateID: s.cid,
	})

	w, _ := s.get("/certificates/" + upper + "/verify")
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *VerifyHandlerSuite) TestMalformedID() {
	cases := map[string]string{
		"missing prefix": "ab00000000000000000000000000000000000000000000000000000000000001ab",
		"too short":      "0xabc",
		"non hex":        "0xzz00000000000000000000000000000000000000000000000000000000000001",
		"zero":           "0x0000000000000000000000000000000000000000000000000000000000000000",
	}
	for name, raw := range cases {
		s.Run(name, func() {
			w, body := s.get("/certificates/" + raw + "/verify")

			assert.Equal(s.T(), http.StatusBadRequest, w.Code)
			assert.Equal(s.T(), "error", body["outcome"])
			assert.Equal(s.T(), "bad_request", body["error"])
		})
	}
}
