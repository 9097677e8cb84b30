package middleware

import (
	"net/http"
	"strings"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

var corsAllowedHeaders = strings.Join([]string{
	"Authorization",
	"Content-Type",
	"Idempotency-Key",
	tenant.HeaderTenantID,
}, ",")

// DefaultCORS allows any origin. Browsers may send X-Tenant-Id, which the
// tenant middleware only uses to cross-check the token's tenant claim.
func DefaultCORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
