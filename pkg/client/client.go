// Package client is a Go SDK for the projecthub API: typed calls, a session holder that
// publishes identity changes, and a project registry that keeps a local, filterable cache.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// envelope mirrors the server's response wrapper.
type envelope[T any] struct {
	Error        bool   `json:"error"`
	Message      string `json:"message"`
	Data         T      `json:"data"`
	Status       int    `json:"status"`
	ErrorDetails *struct {
		Err  string `json:"error"`
		Code struct {
			Code   string `json:"code"`
			Status int    `json:"status"`
		} `json:"code"`
	} `json:"errorDetails"`
}

// Client talks to a projecthub server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken starts the client with an existing access token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// do sends in as JSON and decodes the envelope's data into out when out is non-nil.
func do[T any](ctx context.Context, c *Client, method, path string, in any, out *T) error {
	var body io.Reader
	if in != nil {
		buf, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: "the server could not be reached", Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: "failed to read response", Detail: err.Error()}
	}

	var env envelope[T]
	if err := sonic.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Detail: string(raw)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || env.Error {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		if env.ErrorDetails != nil {
			apiErr.Code = env.ErrorDetails.Code.Code
			apiErr.Detail = env.ErrorDetails.Err
		}
		return apiErr
	}

	if out != nil {
		*out = env.Data
	}
	return nil
}

func projectPath(id uuid.UUID, rest ...string) string {
	return "/api/projects/" + id.String() + strings.Join(rest, "")
}

func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/signup", req)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

// Refresh exchanges the current token for a fresh one.
func (c *Client) Refresh(ctx context.Context) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/refresh", nil)
}

func (c *Client) authenticate(ctx context.Context, path string, in any) (*AuthResponse, error) {
	var out AuthResponse
	if err := do(ctx, c, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// SignOut forgets the token even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := do[any](ctx, c, http.MethodPost, "/api/auth/logout", nil, nil)
	c.SetToken("")
	return err
}

func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := do(ctx, c, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := do(ctx, c, http.MethodGet, "/api/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*Profile, error) {
	var out Profile
	if err := do(ctx, c, http.MethodPut, "/api/profile", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LookupUsername(ctx context.Context, username string) (*Identity, error) {
	var out Identity
	if err := do(ctx, c, http.MethodGet, "/api/profiles/lookup?username="+url.QueryEscape(username), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]*Project, error) {
	var out []*Project
	if err := do(ctx, c, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var out Project
	if err := do(ctx, c, http.MethodGet, projectPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	var out Project
	if err := do(ctx, c, http.MethodPost, "/api/projects", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProject(ctx context.Context, id uuid.UUID, req UpdateProjectRequest) (*Project, error) {
	var out Project
	if err := do(ctx, c, http.MethodPut, projectPath(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject returns the deleted project.
func (c *Client) DeleteProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var out Project
	if err := do(ctx, c, http.MethodDelete, projectPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMembers(ctx context.Context, projectID uuid.UUID) ([]*Participant, error) {
	var out []*Participant
	if err := do(ctx, c, http.MethodGet, projectPath(projectID, "/members"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	return do[any](ctx, c, http.MethodDelete, projectPath(projectID, "/members/", userID.String()), nil, nil)
}

func (c *Client) Quit(ctx context.Context, projectID uuid.UUID) error {
	return do[any](ctx, c, http.MethodPost, projectPath(projectID, "/quit"), nil, nil)
}

func (c *Client) TransferOwnership(ctx context.Context, projectID, newOwnerID uuid.UUID) (*Project, error) {
	var out Project
	in := map[string]uuid.UUID{"new_owner_id": newOwnerID}
	if err := do(ctx, c, http.MethodPost, projectPath(projectID, "/transfer"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invite invites an email address or username. Check EmailSent on the outcome.
func (c *Client) Invite(ctx context.Context, projectID uuid.UUID, target string) (*InviteOutcome, error) {
	var out InviteOutcome
	in := map[string]string{"target": target}
	if err := do(ctx, c, http.MethodPost, projectPath(projectID, "/invitations"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProjectInvitations(ctx context.Context, projectID uuid.UUID) ([]*Invitation, error) {
	var out []*Invitation
	if err := do(ctx, c, http.MethodGet, projectPath(projectID, "/invitations"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMyInvitations(ctx context.Context) ([]*Invitation, error) {
	var out []*Invitation
	if err := do(ctx, c, http.MethodGet, "/api/invitations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AcceptInvitation(ctx context.Context, invitationID uuid.UUID) (*AcceptResult, error) {
	var out AcceptResult
	if err := do(ctx, c, http.MethodPost, "/api/invitations/"+invitationID.String()+"/accept", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptInvitationToken(ctx context.Context, token string) (*AcceptResult, error) {
	var out AcceptResult
	if err := do(ctx, c, http.MethodPost, "/api/invitations/accept", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeclineInvitation(ctx context.Context, invitationID uuid.UUID) error {
	return do[any](ctx, c, http.MethodPost, "/api/invitations/"+invitationID.String()+"/decline", nil, nil)
}

func (c *Client) CancelInvitation(ctx context.Context, invitationID uuid.UUID) error {
	return do[any](ctx, c, http.MethodDelete, "/api/invitations/"+invitationID.String(), nil, nil)
}

func (c *Client) SendContact(ctx context.Context, msg ContactMessage) error {
	return do[any](ctx, c, http.MethodPost, "/api/contact", msg, nil)
}
