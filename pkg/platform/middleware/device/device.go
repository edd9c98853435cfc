// Package device classifies the client software behind a request from its User-Agent.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"shikkha/pkg/requestcontext"
)

// Parse extracts browser, OS, mobile and bot flags from a User-Agent string.
func Parse(userAgent string) requestcontext.Device {
	if userAgent == "" {
		return requestcontext.Device{Browser: "unknown", OS: "unknown"}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	return requestcontext.Device{
		Browser: orUnknown(browser),
		OS:      orUnknown(os),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}

// DisplayName renders "Browser on OS".
func DisplayName(d requestcontext.Device) string {
	return orUnknown(d.Browser) + " on " + orUnknown(d.OS)
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

// Middleware parses the request User-Agent once and stores the result in context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), Parse(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
