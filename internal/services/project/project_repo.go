package project

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const projectColumns = `id, user_id, name, description, tags, created_at, updated_at`

// ProjectRepo handles database operations for projects
type ProjectRepo struct {
	db *sqlx.DB
}

// NewProjectRepo creates a new project repository
func NewProjectRepo(db *sqlx.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Create creates a new project owned by ownerID
func (r *ProjectRepo) Create(ctx context.Context, ownerID uuid.UUID, req *CreateProjectRequest) (*Project, error) {
	query := `
        INSERT INTO projects (user_id, name, description, tags)
        VALUES ($1, $2, $3, $4)
        RETURNING ` + projectColumns

	var project Project
	err := r.db.GetContext(ctx, &project, query, ownerID, req.Name, req.Description, pq.StringArray(req.Tags))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return &project, nil
}

// GetByID retrieves a project by ID without any access check
func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	var project Project
	err := r.db.GetContext(ctx, &project, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// GetAccessible retrieves a project the user owns or is a member of
func (r *ProjectRepo) GetAccessible(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*Project, error) {
	query := `
        SELECT ` + projectColumns + `
        FROM projects p
        WHERE p.id = $1
          AND (p.user_id = $2 OR EXISTS (
              SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = $2
          ))
    `

	var project Project
	err := r.db.GetContext(ctx, &project, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// ListAccessible retrieves owned and shared projects, most recently updated first
func (r *ProjectRepo) ListAccessible(ctx context.Context, userID uuid.UUID) ([]*Project, error) {
	query := `
        SELECT ` + projectColumns + `
        FROM projects p
        WHERE p.user_id = $1
           OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = $1)
        ORDER BY p.updated_at DESC, p.id
    `

	projects := []*Project{}
	err := r.db.SelectContext(ctx, &projects, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}

// Update updates project fields. Only rows owned by ownerID are touched.
func (r *ProjectRepo) Update(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, req *UpdateProjectRequest) (*Project, error) {
	setParts := []string{}
	args := []interface{}{}

	if req.Name != nil {
		setParts = append(setParts, fmt.Sprintf("name = $%d", len(args)+1))
		args = append(args, *req.Name)
	}

	if req.Description != nil {
		setParts = append(setParts, fmt.Sprintf("description = $%d", len(args)+1))
		args = append(args, *req.Description)
	}

	if req.Tags != nil {
		setParts = append(setParts, fmt.Sprintf("tags = $%d", len(args)+1))
		args = append(args, pq.StringArray(*req.Tags))
	}

	if len(setParts) == 0 {
		project, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if project.OwnerID != ownerID {
			return nil, ErrNotProjectOwner
		}
		return project, nil
	}

	setParts = append(setParts, "updated_at = NOW()")
	args = append(args, id, ownerID)

	query := fmt.Sprintf(`
        UPDATE projects
        SET %s
        WHERE id = $%d AND user_id = $%d
        RETURNING `+projectColumns, strings.Join(setParts, ", "), len(args)-1, len(args))

	var project Project
	err := r.db.GetContext(ctx, &project, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, r.ownershipError(ctx, id)
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	return &project, nil
}

// Delete removes a project owned by ownerID. Memberships and invitations cascade.
func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*Project, error) {
	query := `DELETE FROM projects WHERE id = $1 AND user_id = $2 RETURNING ` + projectColumns

	var project Project
	err := r.db.GetContext(ctx, &project, query, id, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, r.ownershipError(ctx, id)
		}
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}

	return &project, nil
}

// ownershipError tells a missing project apart from one owned by someone else.
func (r *ProjectRepo) ownershipError(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrNotProjectOwner
}
