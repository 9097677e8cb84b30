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

	"github.com/zenGate-Global/palmyra-tenancy/domains/posts/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type operation string

const (
	listOperation   operation = "postsList"
	createOperation operation = "postsCreate"
	getOperation    operation = "postsGet"
	updateOperation operation = "postsUpdate"
	deleteOperation operation = "postsDelete"
)

// PostInput is the request body of create and update.
type PostInput struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// Post is the wire representation of a post.
type Post struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenantId"`
	CommunityID uuid.UUID `json:"communityId"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	AuthorID    string    `json:"authorId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PostList wraps a list response.
type PostList struct {
	Items []Post `json:"items"`
}

// Handler wires the posts service to HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("posts service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the post endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/communities/{communityId}/posts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{postId}", h.Get)
		r.Put("/{postId}", h.Update)
		r.Delete("/{postId}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID, ok := pathUUID(w, r, "communityId")
	if !ok {
		return
	}

	posts, err := h.svc.List(ctx, communityID)
	if err != nil {
		h.writeError(ctx, w, err, listOperation)
		return
	}

	items := make([]Post, 0, len(posts))
	for _, p := range posts {
		items = append(items, toAPIPost(p))
	}
	writeJSON(w, http.StatusOK, PostList{Items: items})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID, ok := pathUUID(w, r, "communityId")
	if !ok {
		return
	}
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	post, err := h.svc.Create(ctx, communityID, service.Input{Title: body.Title, Body: body.Body})
	if err != nil {
		h.writeError(ctx, w, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/communities/%s/posts/%s", communityID, post.ID))
	writeJSON(w, http.StatusCreated, toAPIPost(post))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID, postID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	post, err := h.svc.Get(ctx, communityID, postID)
	if err != nil {
		h.writeError(ctx, w, err, getOperation)
		return
	}
	writeJSON(w, http.StatusOK, toAPIPost(post))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID, postID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	post, err := h.svc.Update(ctx, communityID, postID, service.Input{Title: body.Title, Body: body.Body})
	if err != nil {
		h.writeError(ctx, w, err, updateOperation)
		return
	}
	writeJSON(w, http.StatusOK, toAPIPost(post))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	communityID, postID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(ctx, communityID, postID); err != nil {
		h.writeError(ctx, w, err, deleteOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	communityID, ok := pathUUID(w, r, "communityId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	postID, ok := pathUUID(w, r, "postId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return communityID, postID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		problemdetails.Write(w, problemdetails.New("Invalid path parameter", name+" must be a UUID", problemdetails.TypeValidation, http.StatusBadRequest).
			WithFieldErrors(map[string][]string{name: {err.Error()}}))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (PostInput, bool) {
	var body PostInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.loggerFrom(r.Context()).Info("invalid post request body", zap.Error(err))
		problemdetails.Write(w, problemdetails.New("Invalid request body", "request body must be a post object", problemdetails.TypeValidation, http.StatusBadRequest))
		return PostInput{}, false
	}
	return body, true
}

func toAPIPost(p service.Post) Post {
	return Post{
		ID:          p.ID,
		TenantID:    p.TenantID,
		CommunityID: p.CommunityID,
		Title:       p.Title,
		Body:        p.Body,
		AuthorID:    p.AuthorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
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
		logger.Error("posts operation failed", fields...)
	case problem.Status == http.StatusNotFound:
		logger.Info("posts resource not found", fields...)
	default:
		logger.Warn("posts request rejected", fields...)
	}

	problemdetails.Write(w, problem)
}

func classifyError(err error) problemdetails.ProblemDetails {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return problemdetails.New("Validation failed", "one or more fields are invalid", problemdetails.TypeValidation, http.StatusBadRequest).
			WithFieldErrors(validationErr.Fields)
	case errors.Is(err, service.ErrNotFound):
		return problemdetails.New("Resource not found", "post not found", problemdetails.TypeNotFound, http.StatusNotFound)
	case errors.Is(err, service.ErrCommunityNotFound):
		return problemdetails.New("Resource not found", "community not found", problemdetails.TypeNotFound, http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		return problemdetails.New("Forbidden", err.Error(), problemdetails.TypeForbidden, http.StatusForbidden)
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
