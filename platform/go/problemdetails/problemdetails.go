// Package problemdetails renders RFC 7807 responses.
package problemdetails

import (
	"encoding/json"
	"net/http"
)

// ContentType is the media type of a problem response.
const ContentType = "application/problem+json"

// Problem type URIs shared across handlers and middleware.
const (
	TypeValidation   = "https://tcg.land/problems/validation-error"
	TypeUnauthorized = "https://tcg.land/problems/unauthorized"
	TypeForbidden    = "https://tcg.land/problems/forbidden"
	TypeNotFound     = "https://tcg.land/problems/not-found"
	TypeConflict     = "https://tcg.land/problems/conflict"
	TypeOwnership    = "https://tcg.land/problems/tenant-ownership-violation"
	TypeUnavailable  = "https://tcg.land/problems/service-unavailable"
	TypeInternal     = "https://tcg.land/problems/internal-error"
)

// ProblemDetails is the RFC 7807 body.
type ProblemDetails struct {
	Type     *string              `json:"type,omitempty"`
	Title    string               `json:"title"`
	Status   int                  `json:"status"`
	Detail   *string              `json:"detail,omitempty"`
	Instance *string              `json:"instance,omitempty"`
	Code     *string              `json:"code,omitempty"`
	Errors   *map[string][]string `json:"errors,omitempty"`
}

// New builds a problem. Empty detail and problemType are omitted.
func New(title, detail, problemType string, status int) ProblemDetails {
	p := ProblemDetails{Title: title, Status: status}
	if detail != "" {
		p.Detail = &detail
	}
	if problemType != "" {
		p.Type = &problemType
	}
	return p
}

// WithCode attaches a machine-readable code.
func (p ProblemDetails) WithCode(code string) ProblemDetails {
	if code != "" {
		p.Code = &code
	}
	return p
}

// WithFieldErrors attaches a copy of per-field validation messages.
func (p ProblemDetails) WithFieldErrors(fields map[string][]string) ProblemDetails {
	if len(fields) == 0 {
		return p
	}
	copied := make(map[string][]string, len(fields))
	for field, messages := range fields {
		copied[field] = append([]string(nil), messages...)
	}
	p.Errors = &copied
	return p
}

// Write encodes p with its status code.
func Write(w http.ResponseWriter, p ProblemDetails) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
