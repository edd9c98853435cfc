package domain

import "fmt"

// APIVersion is a route or token API version.
type APIVersion string

const APIVersionV1 APIVersion = "v1"

var versionOrder = map[APIVersion]int{
	APIVersionV1: 1,
}

// ParseAPIVersion rejects versions the service does not serve.
func ParseAPIVersion(s string) (APIVersion, error) {
	v := APIVersion(s)
	if _, ok := versionOrder[v]; !ok {
		return "", fmt.Errorf("unknown API version: %s", s)
	}
	return v, nil
}

func (v APIVersion) String() string {
	return string(v)
}

func (v APIVersion) IsNil() bool {
	return v == ""
}

// IsAtLeast reports whether v is the same as or newer than other.
// Comparisons involving an unknown version are false.
func (v APIVersion) IsAtLeast(other APIVersion) bool {
	thisOrder, thisOK := versionOrder[v]
	if !thisOK {
		return false
	}
	otherOrder, otherOK := versionOrder[other]
	if !otherOK {
		return false
	}
	return thisOrder >= otherOrder
}

// DefaultVersion is stamped into newly minted caller tokens.
func DefaultVersion() APIVersion {
	return APIVersionV1
}
