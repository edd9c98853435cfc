package docstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ipfs/go-cid"

	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// IPFSConfig configures the IPFS HTTP API client. ProjectID and
// ProjectSecret enable basic auth for hosted pinning services.
type IPFSConfig struct {
	APIURL        string
	Gateway       string
	ProjectID     string
	ProjectSecret string
	Timeout       time.Duration
	MaxBytes      int
}

// IPFS stores documents through the IPFS HTTP API (/api/v0).
type IPFS struct {
	client   *resty.Client
	gateway  string
	maxBytes int
	logger   *slog.Logger
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
}

func NewIPFS(cfg IPFSConfig, logger *slog.Logger) *IPFS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetError(&apiError{})
	if cfg.ProjectID != "" && cfg.ProjectSecret != "" {
		client.SetBasicAuth(cfg.ProjectID, cfg.ProjectSecret)
	}
	return &IPFS{
		client:   client,
		gateway:  cfg.Gateway,
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}
}

// Put adds and pins doc, returning its CIDv1.
func (s *IPFS) Put(ctx context.Context, doc []byte) (id.DocumentLocator, error) {
	if err := checkSize(doc, s.maxBytes); err != nil {
		return "", err
	}

	var out addResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cid-version": "1",
			"raw-leaves":  "true",
			"pin":         "true",
		}).
		SetFileReader("file", "certificate.pdf", bytes.NewReader(doc)).
		SetResult(&out).
		Post("/api/v0/add")
	if err := s.check(ctx, "add", resp, err); err != nil {
		return "", err
	}

	c, err := cid.Decode(out.Hash)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDecode, "document store returned an invalid CID")
	}
	return id.DocumentLocator(c.String()), nil
}

// Get fetches the bytes stored under locator.
func (s *IPFS) Get(ctx context.Context, locator id.DocumentLocator) ([]byte, error) {
	loc, err := ParseLocator(locator.String())
	if err != nil {
		return nil, err
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("arg", loc.String()).
		Post("/api/v0/cat")
	if err := s.check(ctx, "cat", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (s *IPFS) URL(locator id.DocumentLocator) (string, error) {
	return GatewayURL(s.gateway, locator)
}

// Health asks the node for its identity.
func (s *IPFS) Health(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Post("/api/v0/id")
	return s.check(ctx, "id", resp, err)
}

// check maps transport failures and non-2xx replies to CodeUnavailable,
// or CodeTimeout when the deadline passed.
func (s *IPFS) check(ctx context.Context, op string, resp *resty.Response, err error) error {
	if err != nil {
		s.logger.WarnContext(ctx, "document store request failed", "operation", op, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "document store timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable")
	}
	if resp.IsError() {
		msg := resp.Status()
		if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Message != "" {
			msg = apiErr.Message
		}
		s.logger.WarnContext(ctx, "document store rejected request",
			"operation", op,
			"status", resp.StatusCode(),
			"message", msg,
		)
		return dErrors.New(dErrors.CodeUnavailable, "document store rejected the request")
	}
	return nil
}
