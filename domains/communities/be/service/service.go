package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainrepo "github.com/zenGate-Global/palmyra-tenancy/domains/communities/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/scoped"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	maxNameLength        = 120
	maxDescriptionLength = 2000
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
	ErrNotFound = errors.New("community not found")
	ErrConflict = errors.New("community name already in use")
)

// Community is the service view of a community.
type Community = domainrepo.Community

// CreateInput defines the payload required to create a community.
type CreateInput struct {
	Name        string
	Description *string
}

// UpdateInput defines the fields that can be modified on a community.
type UpdateInput struct {
	Name        *string
	Description *string
}

// Service exposes the communities domain operations. Every operation acts on
// the tenant carried by ctx.
type Service interface {
	List(ctx context.Context) ([]Community, error)
	Create(ctx context.Context, input CreateInput) (Community, error)
	Get(ctx context.Context, id uuid.UUID) (Community, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Community, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo domainrepo.Repository
	now  func() time.Time
}

// New builds a communities Service backed by the provided repository.
func New(repo domainrepo.Repository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) List(ctx context.Context) ([]Community, error) {
	return s.repo.GetAll(ctx)
}

func (s *service) Create(ctx context.Context, input CreateInput) (Community, error) {
	tc, err := tenant.Require(ctx)
	if err != nil {
		return Community{}, err
	}

	name, description, verr := validate(&input.Name, input.Description, true)
	if verr != nil {
		return Community{}, verr
	}
	if err := s.ensureNameFree(ctx, name, uuid.Nil); err != nil {
		return Community{}, err
	}

	now := s.now().UTC()
	community := Community{
		Name:      name,
		CreatedBy: tc.PrincipalID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if description != nil {
		community.Description = *description
	}

	created, err := s.repo.Add(ctx, community)
	if err != nil {
		return Community{}, translate(err)
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Community, error) {
	if id == uuid.Nil {
		return Community{}, ErrNotFound
	}

	community, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Community{}, translate(err)
	}
	return community, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Community, error) {
	if input.Name == nil && input.Description == nil {
		return Community{}, &ValidationError{Fields: FieldErrors{"body": {"at least one field must be provided"}}}
	}

	name, description, verr := validate(input.Name, input.Description, false)
	if verr != nil {
		return Community{}, verr
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return Community{}, err
	}

	if input.Name != nil {
		if !strings.EqualFold(name, current.Name) {
			if err := s.ensureNameFree(ctx, name, id); err != nil {
				return Community{}, err
			}
		}
		current.Name = name
	}
	if description != nil {
		current.Description = *description
	}
	current.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Community{}, translate(err)
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, current); err != nil {
		return translate(err)
	}
	return nil
}

// ensureNameFree reports ErrConflict when another community of the tenant
// already uses name, compared case-insensitively.
func (s *service) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.repo.GetAll(ctx)
	if err != nil {
		return translate(err)
	}
	for _, c := range existing {
		if c.ID != self && strings.EqualFold(c.Name, name) {
			return ErrConflict
		}
	}
	return nil
}

func validate(name, description *string, nameRequired bool) (string, *string, error) {
	errs := FieldErrors{}
	var trimmedName string

	switch {
	case name != nil:
		trimmedName = strings.TrimSpace(*name)
		if trimmedName == "" {
			errs.add("name", "name is required")
		} else if utf8.RuneCountInString(trimmedName) > maxNameLength {
			errs.add("name", "name must be at most 120 characters")
		}
	case nameRequired:
		errs.add("name", "name is required")
	}

	var trimmedDescription *string
	if description != nil {
		d := strings.TrimSpace(*description)
		if utf8.RuneCountInString(d) > maxDescriptionLength {
			errs.add("description", "description must be at most 2000 characters")
		}
		trimmedDescription = &d
	}

	if len(errs) > 0 {
		return "", nil, &ValidationError{Fields: errs}
	}
	return trimmedName, trimmedDescription, nil
}

// translate maps repository errors onto the domain sentinels. Ownership
// violations and unresolved tenant errors pass through unchanged.
func translate(err error) error {
	switch {
	case errors.Is(err, scoped.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, scoped.ErrDuplicateKey):
		return ErrConflict
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}
