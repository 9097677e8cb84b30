package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const communitiesBasePath = "/api/v1/communities"

type operation string

const (
	listOperation   operation = "communitiesList"
	createOperation operation = "communitiesCreate"
	getOperation    operation = "communitiesGet"
	updateOperation operation = "communitiesUpdate"
	deleteOperation operation = "communitiesDelete"
)

// CommunityInput is the request body of create and update.
type CommunityInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Community is the wire representation of a community.
type Community struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CommunityList wraps a list response.
type CommunityList struct {
	Items []Community `json:"items"`
}

// Handler wires the communities service to HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("communities service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the community endpoints on r. The tenant context must already
// be on the request.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/communities", h.List)
	r.Post("/communities", h.Create)
	r.Get("/communities/{communityId}", h.Get)
	r.Put("/communities/{communityId}", h.Update)
	r.Delete("/communities/{communityId}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communities, err := h.svc.List(ctx)
	if err != nil {
		h.writeError(ctx, w, err, listOperation)
		return
	}

	items := make([]Community, 0, len(communities))
	for _, c := range communities {
		items = append(items, toAPICommunity(c))
	}
	writeJSON(w, http.StatusOK, CommunityList{Items: items})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	input := service.CreateInput{Description: body.Description}
	if body.Name != nil {
		input.Name = *body.Name
	}

	community, err := h.svc.Create(ctx, input)
	if err != nil {
		h.writeError(ctx, w, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%s", communitiesBasePath, community.ID))
	writeJSON(w, http.StatusCreated, toAPICommunity(community))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.communityID(w, r)
	if !ok {
		return
	}

	community, err := h.svc.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err, getOperation)
		return
	}
	writeJSON(w, http.StatusOK, toAPICommunity(community))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.communityID(w, r)
	if !ok {
		return
	}
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	community, err := h.svc.Update(ctx, id, service.UpdateInput{Name: body.Name, Description: body.Description})
	if err != nil {
		h.writeError(ctx, w, err, updateOperation)
		return
	}
	writeJSON(w, http.StatusOK, toAPICommunity(community))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.communityID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(ctx, id); err != nil {
		h.writeError(ctx, w, err, deleteOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) communityID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "communityId", chi.URLParam(r, "communityId"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		problemdetails.Write(w, problemdetails.New("Invalid path parameter", "communityId must be a UUID", problemdetails.TypeValidation, http.StatusBadRequest).
			WithFieldErrors(map[string][]string{"communityId": {err.Error()}}))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (CommunityInput, bool) {
	var body CommunityInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.loggerFrom(r.Context()).Info("invalid community request body", zap.Error(err))
		problemdetails.Write(w, problemdetails.New("Invalid request body", "request body must be a community object", problemdetails.TypeValidation, http.StatusBadRequest))
		return CommunityInput{}, false
	}
	return body, true
}

func toAPICommunity(c service.Community) Community {
	return Community{
		ID:          c.ID,
		TenantID:    c.TenantID,
		Name:        c.Name,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op operation) {
	problem := classifyError(err)

	logger := h.loggerFrom(ctx)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", problem.Status),
		zap.Error(err),
	}

	switch {
	case problem.Status >= http.StatusInternalServerError:
		logger.Error("communities operation failed", fields...)
	case problem.Status == http.StatusNotFound:
		logger.Info("communities resource not found", fields...)
	default:
		logger.Warn("communities request rejected", fields...)
	}

	problemdetails.Write(w, problem)
}

// classifyError maps service errors onto problem responses. An ownership
// violation is a server fault: the caller never sees the other tenant's ids.
func classifyError(err error) problemdetails.ProblemDetails {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return problemdetails.New("Validation failed", "one or more fields are invalid", problemdetails.TypeValidation, http.StatusBadRequest).
			WithFieldErrors(validationErr.Fields)
	case errors.Is(err, service.ErrNotFound):
		return problemdetails.New("Resource not found", "community not found", problemdetails.TypeNotFound, http.StatusNotFound)
	case errors.Is(err, service.ErrConflict):
		return problemdetails.New("Conflict", "community name already in use", problemdetails.TypeConflict, http.StatusConflict)
	case errors.Is(err, tenant.ErrUnresolved):
		return problemdetails.New("Forbidden", "no tenant context for this request", problemdetails.TypeForbidden, http.StatusForbidden)
	case errors.Is(err, scoped.ErrOwnershipViolation):
		return problemdetails.New("Internal server error", "an unexpected error occurred", problemdetails.TypeOwnership, http.StatusInternalServerError).
			WithCode("TENANT_OWNERSHIP_VIOLATION")
	default:
		return problemdetails.New("Internal server error", "an unexpected error occurred", problemdetails.TypeInternal, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
