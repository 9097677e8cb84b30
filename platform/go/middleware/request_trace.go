package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
)

// RequestTrace stores requesttrace.Info on the context so audit events and logs
// carry the principal and request id. It must run after the JWT middleware.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())

		info := requesttrace.Anonymous(requestID)
		if creds, ok := platformauth.UserFromContext(r.Context()); ok {
			var err error
			info, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build trace info from credentials", zap.Error(err))
				}
				problemdetails.Write(w, problemdetails.New("Unauthorized", "credentials carry no subject", problemdetails.TypeUnauthorized, http.StatusUnauthorized))
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), info)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(info.ActorKind))}
			if info.PrincipalID != "" {
				fields = append(fields, zap.String("principal_id", info.PrincipalID))
			}
			ctx = platformlogging.WithLogger(ctx, logger.With(fields...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
