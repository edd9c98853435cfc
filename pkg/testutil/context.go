package testutil

import (
	"net/http"

	id "shikkha/pkg/domain"
	"shikkha/pkg/requestcontext"
)

// WithCaller adds an authenticated caller to the request context, as the
// auth middleware would. Unparseable addresses are ignored.
func WithCaller(req *http.Request, caller string) *http.Request {
	addr, err := id.ParseAddress(caller)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), addr))
}
