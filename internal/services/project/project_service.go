package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/curaious/projecthub/internal/apperrors"
)

var (
	ErrProjectNotFound = apperrors.Kind(apperrors.ErrNotFound, "project not found")
	ErrNotProjectOwner = apperrors.Kind(apperrors.ErrForbidden, "only the project owner can do this")
)

// Store is the persistence contract of ProjectService; *ProjectRepo implements it.
type Store interface {
	Create(ctx context.Context, ownerID uuid.UUID, req *CreateProjectRequest) (*Project, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	GetAccessible(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Project, error)
	ListAccessible(ctx context.Context, userID uuid.UUID) ([]*Project, error)
	Update(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, req *UpdateProjectRequest) (*Project, error)
	Delete(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*Project, error)
}

// ProjectService contains business logic for projects
type ProjectService struct {
	repo Store
}

// NewProjectService constructs a new ProjectService
func NewProjectService(repo Store) *ProjectService {
	return &ProjectService{repo: repo}
}

// NormalizeTags trims tags, drops blanks and removes case-sensitive duplicates keeping the
// first occurrence.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func normalizeDescription(in *string) *string {
	if in == nil {
		return nil
	}
	d := strings.TrimSpace(*in)
	return &d
}

// Create registers a new project owned by ownerID
func (s *ProjectService) Create(ctx context.Context, ownerID uuid.UUID, req *CreateProjectRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("project name is required")
	}

	normalized := &CreateProjectRequest{
		Name:        name,
		Description: normalizeDescription(req.Description),
		Tags:        NormalizeTags(req.Tags),
	}

	project, err := s.repo.Create(ctx, ownerID, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

// Get fetches a project the user can access
func (s *ProjectService) Get(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Project, error) {
	return s.repo.GetAccessible(ctx, id, userID)
}

// ListAccessible returns owned and shared projects, most recently updated first
func (s *ProjectService) ListAccessible(ctx context.Context, userID uuid.UUID) ([]*Project, error) {
	projects, err := s.repo.ListAccessible(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}

// Update modifies mutable project fields. Only the owner succeeds.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *UpdateProjectRequest) (*Project, error) {
	normalized := &UpdateProjectRequest{Description: normalizeDescription(req.Description)}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.Validation("project name cannot be empty")
		}
		normalized.Name = &name
	}

	if req.Tags != nil {
		tags := NormalizeTags(*req.Tags)
		normalized.Tags = &tags
	}

	project, err := s.repo.Update(ctx, id, userID, normalized)
	if err != nil {
		return nil, s.hideInaccessible(ctx, id, userID, err)
	}

	return project, nil
}

// Delete removes a project and, through the schema, its memberships and invitations.
// The deleted project is returned so callers can drop it from their caches.
func (s *ProjectService) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Project, error) {
	project, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return nil, s.hideInaccessible(ctx, id, userID, err)
	}

	return project, nil
}

// hideInaccessible reports projects the caller cannot see as not found rather than forbidden.
func (s *ProjectService) hideInaccessible(ctx context.Context, id uuid.UUID, userID uuid.UUID, err error) error {
	if !errors.Is(err, ErrNotProjectOwner) {
		return err
	}
	if _, accessErr := s.repo.GetAccessible(ctx, id, userID); accessErr != nil {
		return ErrProjectNotFound
	}
	return ErrNotProjectOwner
}
