// Package devtoken mints unsigned Firebase-shaped ID tokens for AUTH_PROVIDER=dev.
package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Params captures the claims of an unsigned token. No environment variables
// are read so the builder stays deterministic for tooling.
type Params struct {
	ProjectID     string        // Firebase project id; used for aud and iss
	TenantID      string        // tenant UUID, emitted as tenantId and firebase.tenant
	UserID        string        // user_id/sub (required)
	Email         string        // email claim (required)
	Name          string        // display name
	EmailVerified bool          // email_verified claim
	IsAdmin       bool          // isAdmin custom claim
	ExpiresIn     time.Duration // relative expiry; default 1h if zero
	Audience      string        // optional override; defaults to ProjectID
	Issuer        string        // optional override; defaults to https://securetoken.google.com/<projectId>
}

// BuildUnsignedFirebaseToken returns a JWT string with alg "none" and no signature.
// The payload mirrors a Firebase ID token so it flows through the auth
// middleware when tokens are decoded with auth.UnsignedTokenVerifier.
func BuildUnsignedFirebaseToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.ProjectID) == "" {
		return "", errors.New("projectID is required")
	}
	if _, err := uuid.Parse(strings.TrimSpace(p.TenantID)); err != nil {
		return "", fmt.Errorf("tenantID must be a UUID: %w", err)
	}
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = fmt.Sprintf("https://securetoken.google.com/%s", p.ProjectID)
	}

	audience := p.Audience
	if strings.TrimSpace(audience) == "" {
		audience = p.ProjectID
	}

	tenantID := strings.TrimSpace(p.TenantID)
	payload := map[string]interface{}{
		"iss":            issuer,
		"aud":            audience,
		"auth_time":      now.Unix(),
		"user_id":        p.UserID,
		"sub":            p.UserID,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          p.Email,
		"email_verified": p.EmailVerified,
		"name":           p.Name,
		"isAdmin":        p.IsAdmin,
		"tenantId":       tenantID,
		"firebase": map[string]interface{}{
			"identities":       map[string]interface{}{"email": []string{p.Email}},
			"sign_in_provider": "password",
			"tenant":           tenantID,
		},
	}

	headerSegment, err := encodeSegment(map[string]interface{}{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return headerSegment + "." + payloadSegment, nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
