package client

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// Listener receives identity transitions. prev and cur are nil when nobody is signed in.
type Listener func(prev, cur *Identity)

// SessionHolder tracks the current identity and publishes every transition to its listeners.
type SessionHolder struct {
	client *Client

	mu        sync.Mutex
	current   *Identity
	listeners map[int]Listener
	nextID    int
	closed    bool
}

func NewSession(c *Client) *SessionHolder {
	return &SessionHolder{client: c, listeners: map[int]Listener{}}
}

// Current returns the signed-in identity or nil.
func (s *SessionHolder) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Init fetches the current identity once. Any failure means nobody is signed in.
func (s *SessionHolder) Init(ctx context.Context) *Identity {
	identity, err := s.client.Me(ctx)
	if err != nil {
		slog.DebugContext(ctx, "No active session", slog.Any("error", err))
		identity = nil
	}
	s.transition(identity)
	return identity
}

// Subscribe registers fn for all later transitions. The returned func removes it.
func (s *SessionHolder) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *SessionHolder) SignUp(ctx context.Context, req SignUpRequest) (*Identity, error) {
	res, err := s.client.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	s.transition(res.User)
	return res.User, nil
}

func (s *SessionHolder) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	res, err := s.client.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.transition(res.User)
	return res.User, nil
}

// SignOut always ends the local session; the server error is only returned.
func (s *SessionHolder) SignOut(ctx context.Context) error {
	err := s.client.SignOut(ctx)
	s.transition(nil)
	return err
}

// Refresh renews the token. A rejected refresh ends the session.
func (s *SessionHolder) Refresh(ctx context.Context) (*Identity, error) {
	res, err := s.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthenticationRequired) {
			s.client.SetToken("")
			s.transition(nil)
		}
		return nil, err
	}
	s.transition(res.User)
	return res.User, nil
}

// Close drops every listener. Later transitions are not published.
func (s *SessionHolder) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = map[int]Listener{}
}

// transition records cur and calls listeners outside the lock, in subscription order.
func (s *SessionHolder) transition(cur *Identity) {
	s.mu.Lock()
	prev := s.current
	s.current = cur
	if s.closed {
		s.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, cur)
	}
}
