package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"firebase.google.com/go/v4/auth"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
)

type ctxKey string

const (
	ctxUserCredentials ctxKey = "PALMYRA_USER_CREDENTIALS"
)

// UserCredentials is the verified claim set. TenantID is the raw tenant claim;
// it is parsed and validated by the tenant resolver, never here.
type UserCredentials struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          *string
	IsAdmin       bool
	TenantID      *string
}

// WithUser stores creds on the context.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok && u != nil
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// ExtractFunc converts a claims map into UserCredentials.
type ExtractFunc func(claims map[string]interface{}) (*UserCredentials, error)

// ErrMissingSubject is returned when a verified token names no subject.
var ErrMissingSubject = errors.New("token has no subject")

// JWT parses the request and sets the context credentials using the provided verify/extract functions.
// Requests without a bearer token pass through unauthenticated; use RequireUser to reject them.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractJWTToken(r)
			if token == "" || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description=%q`, err.Error()))
				problemdetails.Write(w, problemdetails.New("Unauthorized", "invalid token", problemdetails.TypeUnauthorized, http.StatusUnauthorized))
				return
			}

			creds, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				problemdetails.Write(w, problemdetails.New("Unauthorized", "invalid claims", problemdetails.TypeUnauthorized, http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// RequireUser rejects requests that carry no verified credentials.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := UserFromContext(r.Context()); !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				problemdetails.Write(w, problemdetails.New("Unauthorized", "bearer token required", problemdetails.TypeUnauthorized, http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultCredentialExtractor converts standard claims into UserCredentials.
func DefaultCredentialExtractor(claims map[string]interface{}) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	subject := firstStringClaim(claims, "sub", "uid", "user_id")
	if subject == "" {
		return nil, ErrMissingSubject
	}

	creds := &UserCredentials{
		Subject:       subject,
		Email:         extractStringClaim(claims, "email"),
		EmailVerified: extractBoolClaim(claims, "email_verified"),
		Name:          extractOptionalStringClaim(claims, "name"),
		IsAdmin:       extractBoolClaim(claims, "isAdmin"),
		TenantID:      extractTenantID(claims),
	}

	return creds, nil
}

func extractBoolClaim(claims map[string]interface{}, key string) bool {
	if v, ok := claims[key]; ok {
		if boolVal, valid := v.(bool); valid {
			return boolVal
		}
	}
	return false
}

func extractStringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key]; ok {
		if strVal, valid := v.(string); valid {
			return strVal
		}
	}
	return ""
}

func extractOptionalStringClaim(claims map[string]interface{}, key string) *string {
	if v, ok := claims[key]; ok {
		if strVal, valid := v.(string); valid && strVal != "" {
			return &strVal
		}
	}
	return nil
}

// extractTenantID prefers the top-level tenantId custom claim and falls back
// to the Identity Platform firebase.tenant claim.
func extractTenantID(claims map[string]interface{}) *string {
	if tenant := extractOptionalStringClaim(claims, "tenantId"); tenant != nil {
		return tenant
	}

	firebaseClaim, ok := claims["firebase"].(map[string]interface{})
	if !ok {
		return nil
	}

	if tenant, ok := firebaseClaim["tenant"].(string); ok && tenant != "" {
		return &tenant
	}

	return nil
}

func firstStringClaim(claims map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v := extractStringClaim(claims, key); v != "" {
			return v
		}
	}
	return ""
}

// FirebaseTokenVerifier returns a VerifyFunc that validates tokens via Firebase Auth.
func FirebaseTokenVerifier(fbAuth *auth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]interface{}, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		if tenant := t.Firebase.Tenant; tenant != "" {
			if firebaseClaim, ok := claims["firebase"].(map[string]interface{}); ok {
				firebaseClaim["tenant"] = tenant
				claims["firebase"] = firebaseClaim
			} else {
				claims["firebase"] = map[string]interface{}{"tenant": tenant}
			}
		}

		return claims, nil
	}
}

// UnsignedTokenVerifier returns a VerifyFunc that decodes unsigned JWT payloads without validation.
// Local development only.
func UnsignedTokenVerifier() VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		return parseUnsignedJWTClaims(token)
	}
}
