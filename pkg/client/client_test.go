package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements the subset of the server the SDK tests need.
type fakeAPI struct {
	mu       sync.Mutex
	users    map[string]*Identity // by email
	tokens   map[string]*Identity
	projects []*Project
	issued   int
	invitee  *Invitation
}

func newFakeAPI() *fakeAPI {
	alice := &Identity{ID: uuid.New(), Email: "alice@example.com", DisplayName: "Alice"}
	bob := &Identity{ID: uuid.New(), Email: "bob@example.com", DisplayName: "Bob"}
	return &fakeAPI{
		users:  map[string]*Identity{alice.Email: alice, bob.Email: bob},
		tokens: map[string]*Identity{},
	}
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any, code string) {
	body := map[string]any{"error": status >= 400, "message": message, "data": data, "status": status}
	if code != "" {
		body["errorDetails"] = map[string]any{"error": message, "code": map[string]any{"code": code, "status": status}}
	}
	buf, _ := sonic.Marshal(body)
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func (f *fakeAPI) issue(w http.ResponseWriter, identity *Identity) {
	f.issued++
	token := identity.Email + "-" + string(rune('a'+f.issued))
	f.tokens[token] = identity
	writeEnvelope(w, http.StatusOK, "success", AuthResponse{Token: token, ExpiresAt: time.Now().Add(time.Hour), User: identity}, "")
}

func (f *fakeAPI) caller(r *http.Request) *Identity {
	return f.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	authed := func(next func(w http.ResponseWriter, r *http.Request, me *Identity)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			me := f.caller(r)
			if me == nil {
				writeEnvelope(w, http.StatusUnauthorized, "Sign in to continue", nil, "authentication_required")
				return
			}
			next(w, r, me)
		}
	}

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req map[string]string
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
		identity, ok := f.users[req["email"]]
		if !ok || req["password"] != "secret" {
			writeEnvelope(w, http.StatusUnauthorized, "invalid email or password", nil, "authentication_required")
			return
		}
		f.issue(w, identity)
	})
	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req SignUpRequest
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
		identity := &Identity{ID: uuid.New(), Email: req.Email, DisplayName: req.DisplayName}
		f.users[req.Email] = identity
		f.issue(w, identity)
	})
	mux.HandleFunc("POST /api/auth/refresh", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		f.issue(w, me)
	}))
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, "Logged out successfully", nil, "")
	})
	mux.HandleFunc("GET /api/auth/me", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		writeEnvelope(w, http.StatusOK, "success", me, "")
	}))
	mux.HandleFunc("GET /api/projects", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		writeEnvelope(w, http.StatusOK, "success", f.projects, "")
	}))
	mux.HandleFunc("POST /api/projects", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		var req CreateProjectRequest
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
		p := &Project{ID: uuid.New(), OwnerID: me.ID, Name: req.Name, Description: req.Description, Tags: req.Tags, UpdatedAt: time.Now()}
		f.projects = MergeAppend(f.projects, p)
		writeEnvelope(w, http.StatusOK, "Project created successfully", p, "")
	}))
	mux.HandleFunc("GET /api/projects/{id}", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		for _, p := range f.projects {
			if p.ID.String() == r.PathValue("id") {
				writeEnvelope(w, http.StatusOK, "success", p, "")
				return
			}
		}
		writeEnvelope(w, http.StatusNotFound, "project not found", nil, "not_found")
	}))
	mux.HandleFunc("PUT /api/projects/{id}", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		var req UpdateProjectRequest
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
		for _, p := range f.projects {
			if p.ID.String() != r.PathValue("id") {
				continue
			}
			if p.OwnerID != me.ID {
				writeEnvelope(w, http.StatusForbidden, "only the project owner can do this", nil, "forbidden")
				return
			}
			updated := *p
			if req.Name != nil {
				updated.Name = *req.Name
			}
			if req.Tags != nil {
				updated.Tags = *req.Tags
			}
			f.projects = MergeReplace(f.projects, &updated)
			writeEnvelope(w, http.StatusOK, "Project updated successfully", &updated, "")
			return
		}
		writeEnvelope(w, http.StatusNotFound, "project not found", nil, "not_found")
	}))
	mux.HandleFunc("DELETE /api/projects/{id}", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		for _, p := range f.projects {
			if p.ID.String() == r.PathValue("id") {
				f.projects = MergeRemove(f.projects, p.ID)
				writeEnvelope(w, http.StatusOK, "Project deleted successfully", p, "")
				return
			}
		}
		writeEnvelope(w, http.StatusNotFound, "project not found", nil, "not_found")
	}))
	mux.HandleFunc("POST /api/projects/{id}/invitations", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		var req map[string]string
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
		switch req["target"] {
		case me.Email:
			writeEnvelope(w, http.StatusUnprocessableEntity, "you cannot invite yourself", nil, "self_invite")
		case "dup@example.com":
			writeEnvelope(w, http.StatusConflict, "a pending invitation already exists for this email", nil, "duplicate_pending_invitation")
		default:
			inv := &Invitation{ID: uuid.New(), ProjectID: uuid.MustParse(r.PathValue("id")), Email: req["target"], Role: "member", InvitedBy: me.ID}
			f.invitee = inv
			writeEnvelope(w, http.StatusOK, "Invitation created, but the email could not be sent",
				InviteOutcome{Invitation: inv, EmailSent: false, EmailError: "email delivery is not configured"}, "")
		}
	}))
	mux.HandleFunc("POST /api/invitations/{id}/accept", authed(func(w http.ResponseWriter, r *http.Request, me *Identity) {
		inv := f.invitee
		if inv == nil || inv.ID.String() != r.PathValue("id") {
			writeEnvelope(w, http.StatusNotFound, "invitation not found", nil, "not_found")
			return
		}
		if !strings.EqualFold(inv.Email, me.Email) {
			writeEnvelope(w, http.StatusForbidden, "this invitation was sent to a different email address", nil, "forbidden")
			return
		}
		now := time.Now()
		inv.AcceptedAt = &now
		writeEnvelope(w, http.StatusOK, "Invitation accepted successfully",
			AcceptResult{Invitation: inv, Membership: &Membership{ID: uuid.New(), ProjectID: inv.ProjectID, UserID: me.ID, Role: "member"}}, "")
	}))
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithHTTPClient(srv.Client())), api
}

func TestClient_SignInAndErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Me(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	_, err = c.SignIn(ctx, "alice@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid email or password", apiErr.Message)

	res, err := c.SignIn(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, res.Token, c.Token())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, c.Token())
}

func TestClient_InviteErrorsAreTyped(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	_, err := c.SignIn(ctx, "alice@example.com", "secret")
	require.NoError(t, err)

	projectID := uuid.New()

	_, err = c.Invite(ctx, projectID, "alice@example.com")
	assert.ErrorIs(t, err, ErrSelfInvite)

	_, err = c.Invite(ctx, projectID, "dup@example.com")
	assert.ErrorIs(t, err, ErrDuplicatePendingInvitation)
	assert.False(t, errors.Is(err, ErrSelfInvite))

	outcome, err := c.Invite(ctx, projectID, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, outcome.EmailSent)
	assert.Equal(t, "bob@example.com", outcome.Invitation.Email)
}

func TestClient_NonEnvelopeError(t *testing.T) {
	c, _ := newTestClient(t)

	err := do[any](context.Background(), c, http.MethodGet, "/api/health", nil, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.ErrorIs(t, err, ErrRemoteFailure)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrRemoteFailure)
}
