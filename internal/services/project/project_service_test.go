package project

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/projecthub/internal/apperrors"
)

type memStore struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*Project
	members  map[uuid.UUID][]uuid.UUID
	clock    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[uuid.UUID]*Project{},
		members:  map[uuid.UUID][]uuid.UUID{},
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) accessible(p *Project, userID uuid.UUID) bool {
	if p.OwnerID == userID {
		return true
	}
	for _, id := range m.members[p.ID] {
		if id == userID {
			return true
		}
	}
	return false
}

func (m *memStore) Create(_ context.Context, ownerID uuid.UUID, req *CreateProjectRequest) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	p := &Project{ID: uuid.New(), OwnerID: ownerID, Name: req.Name, Description: req.Description, Tags: pq.StringArray(req.Tags), CreatedAt: now, UpdatedAt: now}
	m.projects[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetAccessible(_ context.Context, id uuid.UUID, userID uuid.UUID) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || !m.accessible(p, userID) {
		return nil, ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListAccessible(_ context.Context, userID uuid.UUID) ([]*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Project{}
	for _, p := range m.projects {
		if m.accessible(p, userID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, ownerID uuid.UUID, req *UpdateProjectRequest) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	if p.OwnerID != ownerID {
		return nil, ErrNotProjectOwner
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	if req.Tags != nil {
		p.Tags = pq.StringArray(*req.Tags)
	}
	p.UpdatedAt = m.tick()
	cp := *p
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID, ownerID uuid.UUID) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	if p.OwnerID != ownerID {
		return nil, ErrNotProjectOwner
	}
	delete(m.projects, id)
	delete(m.members, id)
	return p, nil
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: []string{}},
		{name: "keeps order", in: []string{"go", "backend", "api"}, want: []string{"go", "backend", "api"}},
		{name: "dedup is case sensitive", in: []string{"Go", "go", "Go"}, want: []string{"Go", "go"}},
		{name: "trims and drops blanks", in: []string{" api ", "", "  ", "api"}, want: []string{"api"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.in))
		})
	}
}

func TestProjectService_Create(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	tests := []struct {
		name    string
		req     CreateProjectRequest
		wantErr bool
	}{
		{name: "valid", req: CreateProjectRequest{Name: "Alpha", Tags: []string{}}},
		{name: "trimmed name", req: CreateProjectRequest{Name: "  Beta  ", Tags: []string{"x", "x"}}},
		{name: "empty name", req: CreateProjectRequest{Name: ""}, wantErr: true},
		{name: "blank name", req: CreateProjectRequest{Name: "   "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewProjectService(newMemStore())
			p, err := svc.Create(ctx, owner, &tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, owner, p.OwnerID)
			assert.NotContains(t, p.Name, " ")
			assert.Equal(t, NormalizeTags(tt.req.Tags), []string(p.Tags))
		})
	}
}

func TestProjectService_ListAccessible(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewProjectService(store)
	alice, bob := uuid.New(), uuid.New()

	a1, err := svc.Create(ctx, alice, &CreateProjectRequest{Name: "a1"})
	require.NoError(t, err)
	b1, err := svc.Create(ctx, bob, &CreateProjectRequest{Name: "b1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, &CreateProjectRequest{Name: "b2"})
	require.NoError(t, err)
	store.members[b1.ID] = []uuid.UUID{alice}

	projects, err := svc.ListAccessible(ctx, alice)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, b1.ID, projects[0].ID, "most recently updated first")
	assert.Equal(t, a1.ID, projects[1].ID)
}

func TestProjectService_UpdateOwnerOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewProjectService(store)
	owner, member, stranger := uuid.New(), uuid.New(), uuid.New()

	p, err := svc.Create(ctx, owner, &CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)
	store.members[p.ID] = []uuid.UUID{member}

	newName := "Alpha 2"
	tags := []string{"backend", "backend"}
	updated, err := svc.Update(ctx, p.ID, owner, &UpdateProjectRequest{Name: &newName, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Alpha 2", updated.Name)
	assert.Equal(t, []string{"backend"}, []string(updated.Tags))
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	_, err = svc.Update(ctx, p.ID, member, &UpdateProjectRequest{Name: &newName})
	assert.ErrorIs(t, err, ErrNotProjectOwner)

	_, err = svc.Update(ctx, p.ID, stranger, &UpdateProjectRequest{Name: &newName})
	assert.ErrorIs(t, err, ErrProjectNotFound)

	blank := " "
	_, err = svc.Update(ctx, p.ID, owner, &UpdateProjectRequest{Name: &blank})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestProjectService_Delete(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewProjectService(store)
	owner, member := uuid.New(), uuid.New()

	p, err := svc.Create(ctx, owner, &CreateProjectRequest{Name: "Alpha"})
	require.NoError(t, err)
	store.members[p.ID] = []uuid.UUID{member}

	_, err = svc.Delete(ctx, p.ID, member)
	assert.ErrorIs(t, err, ErrNotProjectOwner)

	deleted, err := svc.Delete(ctx, p.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, p.ID, deleted.ID)

	_, err = svc.Get(ctx, p.ID, owner)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
