// Package requesttrace carries who-did-what metadata for a single request.
package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
)

type contextKey string

const (
	ctxTraceInfo contextKey = "PALMYRA_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// Info captures request-scoped metadata used to stamp logs and audit events.
// PrincipalID is set only when ActorKind is user. ClaimedTenantID is the raw,
// unvalidated tenant claim; code that needs the tenant must use the resolved
// tenant.Context instead.
type Info struct {
	ActorKind       ActorKind
	PrincipalID     string
	ClaimedTenantID string
	RequestID       string
}

// IntoContext stores the Info in the provided context.
func IntoContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxTraceInfo, info)
}

// FromContext extracts the Info from context, returning false when not present.
func FromContext(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	info, ok := ctx.Value(ctxTraceInfo).(Info)
	return info, ok
}

// FromContextOrAnonymous returns the Info stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) Info {
	if info, ok := FromContext(ctx); ok {
		return info
	}
	return Anonymous("")
}

// FromCredentials builds an Info from verified credentials and a request ID.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (Info, error) {
	if creds == nil {
		return Info{}, errors.New("credentials are required to build trace info")
	}
	if creds.Subject == "" {
		return Info{}, errors.New("subject is required to build trace info")
	}

	info := Info{
		ActorKind:   ActorKindUser,
		PrincipalID: creds.Subject,
		RequestID:   requestID,
	}
	if creds.TenantID != nil {
		info.ClaimedTenantID = *creds.TenantID
	}
	return info, nil
}

// Anonymous builds an Info for requests without credentials.
func Anonymous(requestID string) Info {
	return Info{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an Info for CLI and background operations.
func System(requestID string) Info {
	return Info{ActorKind: ActorKindSystem, PrincipalID: "system", RequestID: requestID}
}
