package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	communitiesrepo "github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/repo"
	domainrepo "github.com/zenGate-Global/palmyra-tenancy/domains/posts/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	maxTitleLength = 200
	maxBodyLength  = 20000
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError captures input validation problems surfaced by the service.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain-level error sentinel values.
var (
	ErrNotFound          = errors.New("post not found")
	ErrCommunityNotFound = errors.New("community not found")
	ErrForbidden         = errors.New("only the author or a tenant admin may change a post")
)

// Post is the service view of a post.
type Post = domainrepo.Post

// Input carries the editable post fields.
type Input struct {
	Title *string
	Body  *string
}

// Communities is the lookup used to check a post's parent within the tenant.
type Communities interface {
	GetByID(ctx context.Context, id uuid.UUID) (communitiesrepo.Community, error)
}

// Service exposes the posts domain operations. Every operation acts on the
// tenant carried by ctx and on one community of that tenant.
type Service interface {
	List(ctx context.Context, communityID uuid.UUID) ([]Post, error)
	Create(ctx context.Context, communityID uuid.UUID, input Input) (Post, error)
	Get(ctx context.Context, communityID, postID uuid.UUID) (Post, error)
	Update(ctx context.Context, communityID, postID uuid.UUID, input Input) (Post, error)
	Delete(ctx context.Context, communityID, postID uuid.UUID) error
}

type service struct {
	repo        domainrepo.Repository
	communities Communities
	now         func() time.Time
}

// New builds a posts Service.
func New(repo domainrepo.Repository, communities Communities) Service {
	return &service{
		repo:        repo,
		communities: communities,
		now:         time.Now,
	}
}

func (s *service) List(ctx context.Context, communityID uuid.UUID) ([]Post, error) {
	if err := s.ensureCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, scoped.Cond{Column: domainrepo.ColumnCommunityID, Value: communityID})
}

func (s *service) Create(ctx context.Context, communityID uuid.UUID, input Input) (Post, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return Post{}, err
	}
	if input.Title == nil {
		return Post{}, &ValidationError{Fields: FieldErrors{"title": {"title is required"}}}
	}
	title, body, verr := validate(input)
	if verr != nil {
		return Post{}, verr
	}
	if err := s.ensureCommunity(ctx, communityID); err != nil {
		return Post{}, err
	}

	now := s.now().UTC()
	post := Post{
		CommunityID: communityID,
		Title:       title,
		AuthorID:    tc.PrincipalID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if body != nil {
		post.Body = *body
	}

	created, err := s.repo.Add(ctx, post)
	if err != nil {
		return Post{}, translate(err)
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, communityID, postID uuid.UUID) (Post, error) {
	if postID == uuid.Nil {
		return Post{}, ErrNotFound
	}

	post, err := s.repo.GetByID(ctx, postID)
	if err != nil {
		return Post{}, translate(err)
	}
	if post.CommunityID != communityID {
		return Post{}, ErrNotFound
	}
	return post, nil
}

func (s *service) Update(ctx context.Context, communityID, postID uuid.UUID, input Input) (Post, error) {
	if input.Title == nil && input.Body == nil {
		return Post{}, &ValidationError{Fields: FieldErrors{"body": {"at least one field must be provided"}}}
	}
	title, body, verr := validate(input)
	if verr != nil {
		return Post{}, verr
	}

	current, err := s.editable(ctx, communityID, postID)
	if err != nil {
		return Post{}, err
	}
	if input.Title != nil {
		current.Title = title
	}
	if body != nil {
		current.Body = *body
	}
	current.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Post{}, translate(err)
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, communityID, postID uuid.UUID) error {
	current, err := s.editable(ctx, communityID, postID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, current); err != nil {
		return translate(err)
	}
	return nil
}

// editable loads a post the caller may change: its author, or an owner or
// admin of the tenant.
func (s *service) editable(ctx context.Context, communityID, postID uuid.UUID) (Post, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return Post{}, err
	}
	post, err := s.Get(ctx, communityID, postID)
	if err != nil {
		return Post{}, err
	}
	if post.AuthorID != tc.PrincipalID() && tc.Role() == tenant.RoleMember {
		return Post{}, ErrForbidden
	}
	return post, nil
}

func (s *service) ensureCommunity(ctx context.Context, communityID uuid.UUID) error {
	if communityID == uuid.Nil {
		return ErrCommunityNotFound
	}
	if _, err := s.communities.GetByID(ctx, communityID); err != nil {
		if errors.Is(err, scoped.ErrNotFound) {
			return ErrCommunityNotFound
		}
		return err
	}
	return nil
}

func validate(input Input) (string, *string, error) {
	errs := FieldErrors{}
	var title string

	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			errs.add("title", "title is required")
		} else if utf8.RuneCountInString(title) > maxTitleLength {
			errs.add("title", "title must be at most 200 characters")
		}
	}

	var body *string
	if input.Body != nil {
		b := strings.TrimSpace(*input.Body)
		if utf8.RuneCountInString(b) > maxBodyLength {
			errs.add("body", "body must be at most 20000 characters")
		}
		body = &b
	}

	if len(errs) > 0 {
		return "", nil, &ValidationError{Fields: errs}
	}
	return title, body, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, scoped.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, scoped.ErrParentNotFound):
		return ErrCommunityNotFound
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}
