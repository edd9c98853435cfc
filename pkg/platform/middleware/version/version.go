// Package version provides middleware for API version extraction and validation.
package version

import (
	"encoding/json"
	"net/http"

	id "shikkha/pkg/domain"
	"shikkha/pkg/requestcontext"
)

// ExtractVersion records the version of the chi subrouter that matched.
func ExtractVersion(version id.APIVersion) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithAPIVersion(r.Context(), version)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type versionErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeVersionError(w http.ResponseWriter, statusCode int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(versionErrorResponse{Error: errCode, ErrorDescription: description})
}
