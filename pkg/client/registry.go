package client

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/curaious/projecthub/internal/apperrors"
)

// Filter keeps the projects matching query and carrying every tag in tags, in input order.
// An empty query or tag set matches everything.
func Filter(projects []*Project, query string, tags []string) []*Project {
	out := make([]*Project, 0, len(projects))
	for _, p := range projects {
		if matchesQuery(p, query) && hasTags(p, tags) {
			out = append(out, p)
		}
	}
	return out
}

func matchesQuery(p *Project, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Name), q) {
		return true
	}
	if p.Description != nil && strings.Contains(strings.ToLower(*p.Description), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func hasTags(p *Project, tags []string) bool {
	for _, tag := range tags {
		if !slices.Contains(p.Tags, tag) {
			return false
		}
	}
	return true
}

// MergeReplace swaps in the updated project and moves it to the front, where a list ordered
// by updated_at puts it.
func MergeReplace(projects []*Project, updated *Project) []*Project {
	out := make([]*Project, 0, len(projects)+1)
	out = append(out, updated)
	for _, p := range projects {
		if p.ID != updated.ID {
			out = append(out, p)
		}
	}
	return out
}

// MergeAppend adds a new project at the front. A project already present is replaced.
func MergeAppend(projects []*Project, created *Project) []*Project {
	return MergeReplace(projects, created)
}

// MergeRemove drops the project with id.
func MergeRemove(projects []*Project, id uuid.UUID) []*Project {
	out := make([]*Project, 0, len(projects))
	for _, p := range projects {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeTags trims tags, drops blanks and keeps the first of case-sensitive duplicates.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation("project name is required")
	}
	return name, nil
}

// Registry caches the projects the signed-in identity can access. Every mutation applies the
// entity returned by the server through one merge.
type Registry struct {
	client *Client

	mu       sync.RWMutex
	projects []*Project
	loaded   bool
}

func NewRegistry(c *Client) *Registry {
	return &Registry{client: c}
}

// Bind reloads the registry when someone signs in and clears it when they sign out. Reloads
// keep ctx's values but not its cancellation, so a short-lived ctx does not break later sign-ins.
func (r *Registry) Bind(ctx context.Context, session *SessionHolder) (unsubscribe func()) {
	ctx = context.WithoutCancel(ctx)
	return session.Subscribe(func(prev, cur *Identity) {
		switch {
		case cur == nil:
			r.Clear()
		case prev == nil || prev.ID != cur.ID:
			if err := r.Load(ctx); err != nil {
				slog.ErrorContext(ctx, "Failed to load projects", slog.Any("error", err))
			}
		}
	})
}

// Load replaces the cache with the server's list.
func (r *Registry) Load(ctx context.Context) error {
	projects, err := r.client.ListProjects(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.projects = projects
	r.loaded = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.projects = nil
	r.loaded = false
	r.mu.Unlock()
}

func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Projects returns a copy of the cached list, most recently updated first.
func (r *Registry) Projects() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.projects)
}

// Search filters the cached list.
func (r *Registry) Search(query string, tags []string) []*Project {
	return Filter(r.Projects(), query, tags)
}

// Tags lists the distinct tags of cached projects in first-seen order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, p := range r.projects {
		for _, tag := range p.Tags {
			if !slices.Contains(out, tag) {
				out = append(out, tag)
			}
		}
	}
	return out
}

func (r *Registry) apply(merge func([]*Project) []*Project) {
	r.mu.Lock()
	r.projects = merge(r.projects)
	r.mu.Unlock()
}

func (r *Registry) Create(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	req.Name = name
	req.Tags = NormalizeTags(req.Tags)

	created, err := r.client.CreateProject(ctx, req)
	if err != nil {
		return nil, err
	}
	r.apply(func(ps []*Project) []*Project { return MergeAppend(ps, created) })
	return created, nil
}

func (r *Registry) Update(ctx context.Context, id uuid.UUID, req UpdateProjectRequest) (*Project, error) {
	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		req.Name = &name
	}
	if req.Tags != nil {
		tags := NormalizeTags(*req.Tags)
		req.Tags = &tags
	}

	updated, err := r.client.UpdateProject(ctx, id, req)
	if err != nil {
		return nil, err
	}
	r.apply(func(ps []*Project) []*Project { return MergeReplace(ps, updated) })
	return updated, nil
}

func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := r.client.DeleteProject(ctx, id)
	if err != nil {
		return err
	}
	r.apply(func(ps []*Project) []*Project { return MergeRemove(ps, deleted.ID) })
	return nil
}

// Quit leaves a shared project and drops it from the cache.
func (r *Registry) Quit(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Quit(ctx, id); err != nil {
		return err
	}
	r.apply(func(ps []*Project) []*Project { return MergeRemove(ps, id) })
	return nil
}

func (r *Registry) TransferOwnership(ctx context.Context, id, newOwnerID uuid.UUID) (*Project, error) {
	updated, err := r.client.TransferOwnership(ctx, id, newOwnerID)
	if err != nil {
		return nil, err
	}
	r.apply(func(ps []*Project) []*Project { return MergeReplace(ps, updated) })
	return updated, nil
}

// Accept accepts an invitation and adds its project to the cache. If the invitation was
// accepted but the project could not be fetched, the result is returned with an error
// matching ErrAcceptedNotCached.
func (r *Registry) Accept(ctx context.Context, invitationID uuid.UUID) (*AcceptResult, error) {
	res, err := r.client.AcceptInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return res, r.addJoined(ctx, res)
}

// AcceptToken accepts the invitation behind an emailed link.
func (r *Registry) AcceptToken(ctx context.Context, token string) (*AcceptResult, error) {
	res, err := r.client.AcceptInvitationToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return res, r.addJoined(ctx, res)
}

func (r *Registry) addJoined(ctx context.Context, res *AcceptResult) error {
	p, err := r.client.GetProject(ctx, res.Invitation.ProjectID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAcceptedNotCached, err)
	}
	r.apply(func(ps []*Project) []*Project { return MergeAppend(ps, p) })
	return nil
}
