package membership

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/services/notification"
	"github.com/curaious/projecthub/internal/services/project"
	"github.com/curaious/projecthub/internal/services/user"
)

// memStore mirrors the transactional behaviour of MembershipRepo under a single mutex.
type memStore struct {
	mu          sync.Mutex
	identities  map[uuid.UUID]*user.Identity
	projects    map[uuid.UUID]*project.Project
	members     map[uuid.UUID][]*Membership
	invitations []*Invitation
}

func newMemStore() *memStore {
	return &memStore{
		identities: map[uuid.UUID]*user.Identity{},
		projects:   map[uuid.UUID]*project.Project{},
		members:    map[uuid.UUID][]*Membership{},
	}
}

func (m *memStore) GetProject(_ context.Context, projectID uuid.UUID) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) IsMember(_ context.Context, projectID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.membership(projectID, userID) != nil, nil
}

func (m *memStore) IsMemberEmail(_ context.Context, projectID uuid.UUID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members[projectID] {
		if strings.EqualFold(mem.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) membership(projectID, userID uuid.UUID) *Membership {
	for _, mem := range m.members[projectID] {
		if mem.UserID == userID {
			return mem
		}
	}
	return nil
}

func (m *memStore) CreateInvitation(_ context.Context, inv *Invitation, now time.Time) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invitations {
		if existing.ProjectID == inv.ProjectID && strings.EqualFold(existing.Email, inv.Email) && existing.IsPending(now) {
			return nil, ErrDuplicatePendingInvitation
		}
	}
	stored := *inv
	stored.ID = uuid.New()
	m.invitations = append(m.invitations, &stored)
	cp := stored
	return &cp, nil
}

func (m *memStore) find(pred func(*Invitation) bool) (*Invitation, error) {
	for _, inv := range m.invitations {
		if pred(inv) {
			cp := *inv
			if p, ok := m.projects[inv.ProjectID]; ok {
				cp.ProjectName = p.Name
			}
			return &cp, nil
		}
	}
	return nil, ErrInvitationNotFound
}

func (m *memStore) GetInvitation(_ context.Context, id uuid.UUID) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(i *Invitation) bool { return i.ID == id })
}

func (m *memStore) GetInvitationByToken(_ context.Context, token string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(i *Invitation) bool { return i.Token == token })
}

func (m *memStore) AcceptInvitation(_ context.Context, id uuid.UUID, userID uuid.UUID, email string, now time.Time) (*Invitation, *Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inv *Invitation
	for _, i := range m.invitations {
		if i.ID == id {
			inv = i
		}
	}
	if inv == nil {
		return nil, nil, ErrInvitationNotFound
	}
	if err := checkAcceptable(inv, email, now); err != nil {
		return nil, nil, err
	}

	var mem *Membership
	if m.projects[inv.ProjectID].OwnerID != userID {
		mem = m.membership(inv.ProjectID, userID)
		if mem == nil {
			invitedBy := inv.InvitedBy
			mem = &Membership{
				ID: uuid.New(), ProjectID: inv.ProjectID, UserID: userID, Role: inv.Role, Email: email,
				InvitedBy: &invitedBy, JoinedAt: now, CreatedAt: now, UpdatedAt: now,
			}
			m.members[inv.ProjectID] = append(m.members[inv.ProjectID], mem)
		}
	}

	accepted := now
	inv.AcceptedAt = &accepted
	cp := *inv
	return &cp, mem, nil
}

func (m *memStore) DeleteInvitation(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, inv := range m.invitations {
		if inv.ID == id && inv.IsPending(now) {
			m.invitations = append(m.invitations[:i], m.invitations[i+1:]...)
			return nil
		}
	}
	return ErrInvitationNotFound
}

func (m *memStore) listPending(now time.Time, pred func(*Invitation) bool) []*Invitation {
	out := []*Invitation{}
	for _, inv := range m.invitations {
		if inv.IsPending(now) && pred(inv) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) ListProjectInvitations(_ context.Context, projectID uuid.UUID, now time.Time) ([]*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPending(now, func(i *Invitation) bool { return i.ProjectID == projectID }), nil
}

func (m *memStore) ListInvitationsForEmail(_ context.Context, email string, now time.Time) ([]*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPending(now, func(i *Invitation) bool { return strings.EqualFold(i.Email, email) }), nil
}

func (m *memStore) TransferOwnership(_ context.Context, projectID, currentOwnerID, newOwnerID uuid.UUID, retainFormer bool) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	if p.OwnerID != currentOwnerID {
		return nil, project.ErrNotProjectOwner
	}
	if !m.removeMember(projectID, newOwnerID) {
		return nil, ErrNewOwnerNotMember
	}

	p.OwnerID = newOwnerID
	if retainFormer {
		invitedBy := newOwnerID
		m.members[projectID] = append(m.members[projectID], &Membership{
			ID: uuid.New(), ProjectID: projectID, UserID: currentOwnerID, Role: RoleMember,
			Email: m.identities[currentOwnerID].Email, InvitedBy: &invitedBy,
		})
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) removeMember(projectID, userID uuid.UUID) bool {
	for i, mem := range m.members[projectID] {
		if mem.UserID == userID {
			m.members[projectID] = append(m.members[projectID][:i], m.members[projectID][i+1:]...)
			return true
		}
	}
	return false
}

func (m *memStore) DeleteMembership(_ context.Context, projectID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeMember(projectID, userID), nil
}

func (m *memStore) ListParticipants(_ context.Context, projectID uuid.UUID) ([]*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	owner := m.identities[p.OwnerID]
	out := []*Participant{{Kind: ParticipantOwner, UserID: owner.ID, Email: owner.Email, DisplayName: owner.DisplayName}}
	for _, mem := range m.members[projectID] {
		cp := *mem
		out = append(out, &Participant{Kind: ParticipantMember, UserID: mem.UserID, Email: mem.Email, Membership: &cp})
	}
	return out, nil
}

func (m *memStore) DeleteExpiredInvitations(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.invitations[:0]
	var n int64
	for _, inv := range m.invitations {
		if inv.AcceptedAt == nil && inv.ExpiresAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, inv)
	}
	m.invitations = kept
	return n, nil
}

// owners counts owners of a project as the effective member set sees them: exactly the
// project's owner, who must not also hold a membership row.
func (m *memStore) ownerInvariantHolds(projectID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.projects[projectID]
	return p != nil && p.OwnerID != uuid.Nil && m.membership(projectID, p.OwnerID) == nil
}

type fakeDirectory struct {
	byUsername map[string]*user.Identity
}

func (d *fakeDirectory) LookupUsername(_ context.Context, username string) (*user.Identity, error) {
	if id, ok := d.byUsername[strings.ToLower(username)]; ok {
		return id, nil
	}
	return nil, user.ErrUserNotFound
}

type fakeNotifier struct {
	notices []notification.InvitationNotice
	result  notification.Result
}

func (n *fakeNotifier) SendInvitation(_ context.Context, notice notification.InvitationNotice) notification.Result {
	n.notices = append(n.notices, notice)
	return n.result
}

type fixture struct {
	store    *memStore
	notifier *fakeNotifier
	svc      *MembershipService
	clock    time.Time
	alice    *user.Identity
	bob      *user.Identity
	carol    *user.Identity
	alpha    *project.Project
}

func ptr[T any](v T) *T { return &v }

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		store:    newMemStore(),
		notifier: &fakeNotifier{result: notification.Result{Success: true}},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		alice:    &user.Identity{ID: uuid.New(), Email: "alice@example.com", Username: ptr("alice"), DisplayName: "Alice"},
		bob:      &user.Identity{ID: uuid.New(), Email: "bob@example.com", Username: ptr("bob"), DisplayName: "Bob"},
		carol:    &user.Identity{ID: uuid.New(), Email: "carol@example.com", Username: ptr("Carol_99")},
	}

	dir := &fakeDirectory{byUsername: map[string]*user.Identity{}}
	for _, id := range []*user.Identity{f.alice, f.bob, f.carol} {
		f.store.identities[id.ID] = id
		dir.byUsername[strings.ToLower(*id.Username)] = id
	}

	f.alpha = &project.Project{ID: uuid.New(), OwnerID: f.alice.ID, Name: "Alpha", Tags: []string{}}
	f.store.projects[f.alpha.ID] = f.alpha

	f.svc = NewMembershipService(f.store, dir, f.notifier, opts)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// join invites and accepts so who becomes a member of alpha.
func (f *fixture) join(t *testing.T, who *user.Identity) {
	t.Helper()
	out, err := f.svc.Invite(context.Background(), f.alpha.ID, who.Email, f.alice)
	require.NoError(t, err)
	f.advance(time.Minute)
	_, _, err = f.svc.Accept(context.Background(), out.Invitation.ID, who)
	require.NoError(t, err)
	f.advance(time.Minute)
}

func TestMembershipService_ResolveTarget(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name      string
		input     string
		wantEmail string
		wantErr   error
	}{
		{name: "email is used as given", input: "  Dave@Example.com ", wantEmail: "dave@example.com"},
		{name: "username resolves to email", input: "BOB", wantEmail: "bob@example.com"},
		{name: "own email", input: "ALICE@example.com", wantErr: ErrSelfInvite},
		{name: "own username", input: "alice", wantErr: ErrSelfInvite},
		{name: "unknown username", input: "nobody", wantErr: ErrInviteeNotFound},
		{name: "malformed username", input: "no spaces allowed", wantErr: apperrors.ErrValidation},
		{name: "empty input", input: "   ", wantErr: apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := f.svc.ResolveTarget(ctx, f.alice, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, target.Email)
		})
	}

	_, err := f.svc.ResolveTarget(ctx, nil, "bob")
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationRequired)
}

func TestMembershipService_InviteAndAcceptScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	assert.True(t, out.EmailSent)

	inv := out.Invitation
	assert.Nil(t, inv.AcceptedAt)
	assert.Equal(t, RoleMember, inv.Role)
	assert.Equal(t, f.alice.ID, inv.InvitedBy)
	assert.Equal(t, f.clock.Add(7*24*time.Hour), inv.ExpiresAt)
	assert.NotEmpty(t, inv.Token)

	require.Len(t, f.notifier.notices, 1)
	notice := f.notifier.notices[0]
	assert.Equal(t, "bob@example.com", notice.ToEmail)
	assert.Equal(t, "Alpha", notice.ProjectName)
	assert.Equal(t, "Alice", notice.InviterLabel)
	assert.Equal(t, inv.Token, notice.Token)

	f.advance(time.Hour)
	accepted, mem, err := f.svc.Accept(ctx, inv.ID, f.bob)
	require.NoError(t, err)
	require.NotNil(t, accepted.AcceptedAt)
	require.NotNil(t, mem)
	assert.Equal(t, f.bob.ID, mem.UserID)
	assert.Equal(t, RoleMember, mem.Role)
	assert.Equal(t, f.alice.ID, *mem.InvitedBy)

	member, err := f.store.IsMember(ctx, f.alpha.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, member)

	_, _, err = f.svc.Accept(ctx, inv.ID, f.bob)
	assert.ErrorIs(t, err, ErrInvitationAlreadyAccepted)
}

func TestMembershipService_InviteTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)

	f.advance(time.Hour)
	_, err = f.svc.Invite(ctx, f.alpha.ID, "bob", f.alice)
	assert.ErrorIs(t, err, ErrDuplicatePendingInvitation)
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePendingInvitation)

	assert.Len(t, f.store.invitations, 1)
	assert.Len(t, f.notifier.notices, 1)
}

func TestMembershipService_ExpiredInvitationDoesNotBlock(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	second, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)

	pending, err := f.svc.ListProjectInvitations(ctx, f.alpha.ID, f.alice)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.Invitation.ID, pending[0].ID)

	_, _, err = f.svc.Accept(ctx, first.Invitation.ID, f.bob)
	assert.ErrorIs(t, err, ErrInvitationExpired)

	assert.Len(t, f.store.invitations, 2, "expired invitations are retained")
}

func TestMembershipService_SelfInviteWritesNothing(t *testing.T) {
	f := newFixture(t, Options{})

	for _, input := range []string{"alice@example.com", "Alice"} {
		_, err := f.svc.Invite(context.Background(), f.alpha.ID, input, f.alice)
		assert.ErrorIs(t, err, ErrSelfInvite)
		assert.ErrorIs(t, err, apperrors.ErrSelfInvite)
	}

	assert.Empty(t, f.store.invitations)
	assert.Empty(t, f.notifier.notices)
}

func TestMembershipService_InviteDegradedWhenEmailFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.notifier.result = notification.Result{Success: false, Error: "email api error: status=500"}

	out, err := f.svc.Invite(context.Background(), f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	assert.False(t, out.EmailSent)
	assert.Equal(t, "email api error: status=500", out.EmailError)
	assert.Len(t, f.store.invitations, 1)
}

func TestMembershipService_InviteWithoutNotifier(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.notifier = nil

	out, err := f.svc.Invite(context.Background(), f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	assert.False(t, out.EmailSent)
	assert.Equal(t, notification.ErrNotConfigured.Error(), out.EmailError)
}

func TestMembershipService_InviteAuthorization(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.join(t, f.bob)

	_, err := f.svc.Invite(ctx, f.alpha.ID, "dave@example.com", f.bob)
	assert.ErrorIs(t, err, project.ErrNotProjectOwner)

	_, err = f.svc.Invite(ctx, f.alpha.ID, "dave@example.com", f.carol)
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	_, err = f.svc.Invite(ctx, f.alpha.ID, "dave@example.com", nil)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationRequired)

	_, err = f.svc.Invite(ctx, f.alpha.ID, "BOB@example.com", f.alice)
	assert.ErrorIs(t, err, ErrAlreadyMember)
}

func TestMembershipService_AcceptRejectsOtherEmail(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)

	_, _, err = f.svc.Accept(ctx, out.Invitation.ID, f.carol)
	assert.ErrorIs(t, err, ErrInvitationEmailMismatch)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	assert.Empty(t, f.store.members[f.alpha.ID])
	assert.True(t, f.store.invitations[0].IsPending(f.clock))
}

func TestMembershipService_AcceptByToken(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.Invite(ctx, f.alpha.ID, "carol_99", f.alice)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", out.Invitation.Email)

	_, _, err = f.svc.AcceptByToken(ctx, "not-a-token", f.carol)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	_, _, err = f.svc.AcceptByToken(ctx, "", f.carol)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	inv, mem, err := f.svc.AcceptByToken(ctx, f.notifier.notices[0].Token, f.carol)
	require.NoError(t, err)
	assert.NotNil(t, inv.AcceptedAt)
	assert.Equal(t, f.carol.ID, mem.UserID)
}

func TestMembershipService_DeclineAndCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	toBob, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	toCarol, err := f.svc.Invite(ctx, f.alpha.ID, "carol@example.com", f.alice)
	require.NoError(t, err)

	err = f.svc.Decline(ctx, toBob.Invitation.ID, f.carol)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	require.NoError(t, f.svc.Decline(ctx, toBob.Invitation.ID, f.bob))

	err = f.svc.Cancel(ctx, toCarol.Invitation.ID, f.bob)
	assert.ErrorIs(t, err, ErrNotInviterOrOwner)

	require.NoError(t, f.svc.Cancel(ctx, toCarol.Invitation.ID, f.alice))
	assert.Empty(t, f.store.invitations)

	err = f.svc.Cancel(ctx, toCarol.Invitation.ID, f.alice)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestMembershipService_DeclineAndCancelOnlyPending(t *testing.T) {
	expire := func(_ *testing.T, f *fixture, _ *Invitation) { f.advance(8 * 24 * time.Hour) }
	accept := func(t *testing.T, f *fixture, inv *Invitation) {
		_, _, err := f.svc.Accept(context.Background(), inv.ID, f.bob)
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		settle  func(t *testing.T, f *fixture, inv *Invitation)
		wantErr error
	}{
		{name: "expired", settle: expire, wantErr: ErrInvitationExpired},
		{name: "accepted", settle: accept, wantErr: ErrInvitationAlreadyAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name+" decline", func(t *testing.T) {
			f := newFixture(t, Options{})
			out, err := f.svc.Invite(context.Background(), f.alpha.ID, "bob@example.com", f.alice)
			require.NoError(t, err)
			tt.settle(t, f, out.Invitation)

			err = f.svc.Decline(context.Background(), out.Invitation.ID, f.bob)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, f.store.invitations, 1)
		})

		t.Run(tt.name+" cancel", func(t *testing.T) {
			f := newFixture(t, Options{})
			out, err := f.svc.Invite(context.Background(), f.alpha.ID, "bob@example.com", f.alice)
			require.NoError(t, err)
			tt.settle(t, f, out.Invitation)

			err = f.svc.Cancel(context.Background(), out.Invitation.ID, f.alice)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, f.store.invitations, 1)
		})
	}
}

func TestMembershipService_ExpiredInvitationLeftForReaper(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	f.advance(8 * 24 * time.Hour)

	// The store refuses a delete that races past the expiry.
	err = f.store.DeleteInvitation(ctx, out.Invitation.ID, f.clock)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	require.Len(t, f.store.invitations, 1)

	n, err := f.svc.ReapExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, f.store.invitations)
}

func TestMembershipService_TransferOwnership(t *testing.T) {
	tests := []struct {
		name   string
		retain bool
	}{
		{name: "former owner removed", retain: false},
		{name: "former owner retained as member", retain: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{RetainFormerOwner: tt.retain})
			ctx := context.Background()
			f.join(t, f.bob)

			p, err := f.svc.TransferOwnership(ctx, f.alpha.ID, f.bob.ID, f.alice)
			require.NoError(t, err)
			assert.Equal(t, f.bob.ID, p.OwnerID)
			assert.True(t, f.store.ownerInvariantHolds(f.alpha.ID))

			bobMember, _ := f.store.IsMember(ctx, f.alpha.ID, f.bob.ID)
			assert.False(t, bobMember)

			aliceMember, _ := f.store.IsMember(ctx, f.alpha.ID, f.alice.ID)
			assert.Equal(t, tt.retain, aliceMember)

			_, err = f.svc.TransferOwnership(ctx, f.alpha.ID, f.bob.ID, f.alice)
			if tt.retain {
				assert.ErrorIs(t, err, project.ErrNotProjectOwner)
			} else {
				assert.ErrorIs(t, err, project.ErrProjectNotFound)
			}
		})
	}
}

func TestMembershipService_TransferOwnershipRequiresMember(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.TransferOwnership(ctx, f.alpha.ID, f.carol.ID, f.alice)
	assert.ErrorIs(t, err, ErrNewOwnerNotMember)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, f.alice.ID, f.store.projects[f.alpha.ID].OwnerID)

	_, err = f.svc.TransferOwnership(ctx, f.alpha.ID, f.alice.ID, f.alice)
	assert.ErrorIs(t, err, ErrAlreadyOwner)

	f.join(t, f.bob)
	_, err = f.svc.TransferOwnership(ctx, f.alpha.ID, f.bob.ID, f.bob)
	assert.ErrorIs(t, err, ErrAlreadyOwner)
	assert.True(t, f.store.ownerInvariantHolds(f.alpha.ID))
}

func TestMembershipService_Quit(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.join(t, f.bob)

	require.NoError(t, f.svc.Quit(ctx, f.alpha.ID, f.bob))
	member, _ := f.store.IsMember(ctx, f.alpha.ID, f.bob.ID)
	assert.False(t, member)

	assert.NoError(t, f.svc.Quit(ctx, f.alpha.ID, f.bob), "quitting twice is not an error")
	assert.NoError(t, f.svc.Quit(ctx, uuid.New(), f.bob))

	err := f.svc.Quit(ctx, f.alpha.ID, f.alice)
	assert.ErrorIs(t, err, ErrOwnerCannotQuit)
}

func TestMembershipService_RemoveMember(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.join(t, f.bob)

	err := f.svc.RemoveMember(ctx, f.alpha.ID, f.alice.ID, f.bob)
	assert.ErrorIs(t, err, project.ErrNotProjectOwner)

	require.NoError(t, f.svc.RemoveMember(ctx, f.alpha.ID, f.bob.ID, f.alice))

	err = f.svc.RemoveMember(ctx, f.alpha.ID, f.bob.ID, f.alice)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMembershipService_ListMembers(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.join(t, f.bob)
	f.join(t, f.carol)

	participants, err := f.svc.ListMembers(ctx, f.alpha.ID, f.carol)
	require.NoError(t, err)
	require.Len(t, participants, 3)

	assert.Equal(t, ParticipantOwner, participants[0].Kind)
	assert.Equal(t, f.alice.ID, participants[0].UserID)
	assert.Equal(t, RoleOwner, participants[0].EffectiveRole())
	assert.Nil(t, participants[0].Membership)

	assert.Equal(t, f.bob.ID, participants[1].UserID)
	assert.Equal(t, RoleMember, participants[1].EffectiveRole())
	assert.Equal(t, f.carol.ID, participants[2].UserID)

	_, err = f.svc.ListMembers(ctx, f.alpha.ID, &user.Identity{ID: uuid.New(), Email: "x@example.com"})
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestMembershipService_ListMyInvitations(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	beta := &project.Project{ID: uuid.New(), OwnerID: f.carol.ID, Name: "Beta"}
	gamma := &project.Project{ID: uuid.New(), OwnerID: f.carol.ID, Name: "Gamma"}
	f.store.projects[beta.ID] = beta
	f.store.projects[gamma.ID] = gamma

	_, err := f.svc.Invite(ctx, gamma.ID, "bob@example.com", f.carol)
	require.NoError(t, err)
	f.advance(3 * 24 * time.Hour)

	old, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	f.advance(time.Hour)
	newest, err := f.svc.Invite(ctx, beta.ID, "bob@example.com", f.carol)
	require.NoError(t, err)

	f.advance(4*24*time.Hour + 30*time.Minute)

	mine, err := f.svc.ListMyInvitations(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, mine, 2, "the gamma invitation has expired")
	assert.Equal(t, newest.Invitation.ID, mine[0].ID)
	assert.Equal(t, "Beta", mine[0].ProjectName)
	assert.Equal(t, old.Invitation.ID, mine[1].ID)

	_, _, err = f.svc.Accept(ctx, old.Invitation.ID, f.bob)
	require.NoError(t, err)

	mine, err = f.svc.ListMyInvitations(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, newest.Invitation.ID, mine[0].ID)
}

func TestMembershipService_ReapExpired(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, f.alpha.ID, "bob@example.com", f.alice)
	require.NoError(t, err)
	f.join(t, f.carol)

	f.advance(7*24*time.Hour + 2*time.Hour)

	n, err := f.svc.ReapExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "still within retention")

	f.advance(24 * time.Hour)
	n, err = f.svc.ReapExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, f.store.invitations, 1)
	assert.NotNil(t, f.store.invitations[0].AcceptedAt, "accepted invitations are history and are kept")
}

func TestInvitation_Status(t *testing.T) {
	now := time.Now()
	accepted := now.Add(-time.Minute)

	assert.Equal(t, InvitationPending, (&Invitation{ExpiresAt: now.Add(time.Second)}).Status(now))
	assert.Equal(t, InvitationExpired, (&Invitation{ExpiresAt: now}).Status(now))
	assert.Equal(t, InvitationAccepted, (&Invitation{ExpiresAt: now.Add(-time.Hour), AcceptedAt: &accepted}).Status(now))
}
