package project

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Project is a unit of work owned by exactly one identity and shared with members
type Project struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	OwnerID     uuid.UUID      `json:"owner_id" db:"user_id"`
	Name        string         `json:"name" db:"name"`
	Description *string        `json:"description,omitempty" db:"description"`
	Tags        pq.StringArray `json:"tags" db:"tags"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// CreateProjectRequest captures payload for creating a project
type CreateProjectRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags"`
}

// UpdateProjectRequest captures payload for updating a project
type UpdateProjectRequest struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}
