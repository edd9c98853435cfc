package docstore

import (
	"context"
	"sync"

	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// InMemory keeps documents in process memory, addressed the same way IPFS
// addresses raw blocks.
type InMemory struct {
	mu       sync.RWMutex
	docs     map[id.DocumentLocator][]byte
	gateway  string
	maxBytes int
}

func NewInMemory(gateway string, maxBytes int) *InMemory {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &InMemory{
		docs:     make(map[id.DocumentLocator][]byte),
		gateway:  gateway,
		maxBytes: maxBytes,
	}
}

func (s *InMemory) Put(ctx context.Context, doc []byte) (id.DocumentLocator, error) {
	if err := ctx.Err(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "document store unavailable")
	}
	if err := checkSize(doc, s.maxBytes); err != nil {
		return "", err
	}
	loc, err := LocatorFor(doc)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to address document")
	}
	stored := make([]byte, len(doc))
	copy(stored, doc)

	s.mu.Lock()
	s.docs[loc] = stored
	s.mu.Unlock()
	return loc, nil
}

func (s *InMemory) Get(_ context.Context, locator id.DocumentLocator) ([]byte, error) {
	loc, err := ParseLocator(locator.String())
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[loc]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (s *InMemory) URL(locator id.DocumentLocator) (string, error) {
	return GatewayURL(s.gateway, locator)
}

func (s *InMemory) Health(context.Context) error {
	return nil
}
