// Package models holds rate limit classes, limits and results.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Class groups endpoints that share a limit.
type Class string

const (
	// ClassPublic covers unauthenticated reads such as verification.
	ClassPublic Class = "public"
	// ClassAdmin covers authenticated submissions.
	ClassAdmin Class = "admin"
)

// Limit allows RequestsPerWindow requests in any sliding Window.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

// ExceededResponse is the body written with 429 responses.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// SanitizeKeySegment replaces key delimiters so a caller-controlled value
// cannot address another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// IPKey names the bucket of a client IP for class.
func IPKey(ip string, class Class) string {
	return fmt.Sprintf("rl:ip:%s:%s", SanitizeKeySegment(ip), class)
}

// CallerKey names the bucket of an authenticated caller for class.
func CallerKey(caller string, class Class) string {
	return fmt.Sprintf("rl:caller:%s:%s", SanitizeKeySegment(caller), class)
}
