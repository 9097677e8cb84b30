package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// HeaderTenantID is the optional header cross-checked against the tenant claim.
const HeaderTenantID = "X-Tenant-Id"

// Claims is the typed view of a verified claim set. It is built once at the
// resolver boundary so downstream code never re-parses raw claims.
type Claims struct {
	SubjectID string
	TenantID  uuid.UUID
}

// ParseClaims converts the raw subject and tenant assertions of a verified
// claim set. A missing or malformed tenant id yields TenantClaimMissing.
func ParseClaims(subjectID string, rawTenantID *string) (Claims, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Claims{}, reject(ReasonTenantClaimMissing, "subject claim is empty")
	}
	if rawTenantID == nil || strings.TrimSpace(*rawTenantID) == "" {
		return Claims{}, reject(ReasonTenantClaimMissing, "tenant claim is absent")
	}

	tid, err := uuid.Parse(strings.TrimSpace(*rawTenantID))
	if err != nil || tid == uuid.Nil {
		return Claims{}, reject(ReasonTenantClaimMissing, "tenant claim is malformed")
	}

	return Claims{SubjectID: subjectID, TenantID: tid}, nil
}

// parseHeader returns the header tenant id and whether it parsed.
func parseHeader(raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
