// Package docstore stores certificate documents by content address.
//
// A document's locator is its CIDv1, so the same bytes always map to the
// same locator and a locator can be checked against the bytes it names.
// The store never interprets documents.
package docstore

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// DefaultMaxBytes bounds accepted documents.
const DefaultMaxBytes = 10 << 20

const locatorScheme = "ipfs://"

// ParseLocator accepts a bare CID or an ipfs:// URI.
func ParseLocator(s string) (id.DocumentLocator, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), locatorScheme)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document locator is required")
	}
	c, err := cid.Decode(s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document locator is not a valid CID")
	}
	return id.DocumentLocator(c.String()), nil
}

// LocatorFor computes the CIDv1 (raw codec, sha2-256) of doc.
func LocatorFor(doc []byte) (id.DocumentLocator, error) {
	sum, err := multihash.Sum(doc, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	return id.DocumentLocator(cid.NewCidV1(cid.Raw, sum).String()), nil
}

// GatewayURL joins a public gateway base with a locator.
func GatewayURL(gateway string, locator id.DocumentLocator) (string, error) {
	loc, err := ParseLocator(locator.String())
	if err != nil {
		return "", err
	}
	if gateway == "" {
		return locatorScheme + loc.String(), nil
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return gateway + loc.String(), nil
}

func checkSize(doc []byte, maxBytes int) error {
	if len(doc) == 0 {
		return dErrors.New(dErrors.CodeValidation, "document is empty")
	}
	if maxBytes > 0 && len(doc) > maxBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("document exceeds %d bytes", maxBytes))
	}
	return nil
}
