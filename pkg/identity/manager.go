package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/dittosite/internal/logger"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

var (
	// ErrInvalidState means a login callback did not match a pending login.
	ErrInvalidState = errors.New("identity: login state mismatch")

	// ErrNotAuthor means an author-only action was attempted by someone else.
	ErrNotAuthor = errors.New("identity: not the author")

	// ErrNotLoggedIn means the session carries no viewer token.
	ErrNotLoggedIn = errors.New("identity: not logged in")
)

// Manager owns the login flow and builds per-request capabilities.
//
// Two stores are involved: the server-side store, shared by every request,
// holds the author's token; the session store, private to one browser,
// holds the viewer's token and the pending login state.
type Manager struct {
	authorUID string
	server    kv.Store
	client    remote.Client
	provider  Provider
}

// NewManager creates a manager for the author account authorUID. client is
// the remote bound to the author's content.
func NewManager(authorUID string, server kv.Store, client remote.Client, provider Provider) *Manager {
	return &Manager{
		authorUID: authorUID,
		server:    server,
		client:    client,
		provider:  provider,
	}
}

// AuthorUID returns the configured author account id.
func (m *Manager) AuthorUID() string {
	return m.authorUID
}

// Capability builds the capability of one request from its session.
func (m *Manager) Capability(ctx context.Context, session kv.Store) (Capability, error) {
	var capability Static

	viewer, err := RestoreToken(ctx, session, AccessTokenKey)
	if err != nil {
		return nil, fmt.Errorf("restore viewer token: %w", err)
	}
	if viewer != nil {
		capability.ViewerAccount = viewer.Viewer()
	}

	author, err := RestoreToken(ctx, m.server, AuthorTokenKey(m.authorUID))
	if err != nil {
		return nil, fmt.Errorf("restore author token: %w", err)
	}
	if author != nil {
		capability.AuthorAccount = &Author{AccountID: m.authorUID, Client: m.client}
	}

	return capability, nil
}

// BeginLogin records a fresh login state in the session and returns the
// provider URL to send the browser to.
func (m *Manager) BeginLogin(ctx context.Context, session kv.Store, callbackURL string) (string, error) {
	state := uuid.NewString()
	if err := StoreToken(ctx, session, RequestTokenKey, &Token{UID: state}); err != nil {
		return "", fmt.Errorf("store login state: %w", err)
	}
	return m.provider.AuthURL(state, callbackURL), nil
}

// CompleteLogin checks the callback state, exchanges the code and stores the
// viewer token in the session. When the author logs in while no author
// token is stored, the new token becomes the author token.
func (m *Manager) CompleteLogin(ctx context.Context, session kv.Store, state, code, callbackURL string) (*Viewer, error) {
	pending, err := RestoreToken(ctx, session, RequestTokenKey)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		logger.Debug("login callback without a pending login")
		return nil, ErrInvalidState
	}
	if pending.UID != state {
		logger.Debug("login callback with incorrect state")
		return nil, ErrInvalidState
	}
	if err := RemoveToken(ctx, session, RequestTokenKey); err != nil {
		return nil, err
	}

	tok, err := m.provider.Exchange(ctx, code, callbackURL)
	if err != nil {
		return nil, err
	}
	if err := StoreToken(ctx, session, AccessTokenKey, tok); err != nil {
		return nil, fmt.Errorf("store viewer token: %w", err)
	}

	if tok.UID == m.authorUID {
		existing, err := RestoreToken(ctx, m.server, AuthorTokenKey(m.authorUID))
		if err != nil {
			return nil, err
		}
		if existing == nil {
			if err := m.UpdateAuthorToken(ctx, session); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("Login: uid=%s author=%t", tok.UID, tok.UID == m.authorUID)
	return tok.Viewer(), nil
}

// Logout drops the viewer token from the session.
func (m *Manager) Logout(ctx context.Context, session kv.Store) error {
	return RemoveToken(ctx, session, AccessTokenKey)
}

// IsAuthor reports whether the session belongs to the author.
func (m *Manager) IsAuthor(ctx context.Context, session kv.Store) (bool, error) {
	tok, err := RestoreToken(ctx, session, AccessTokenKey)
	if err != nil {
		return false, err
	}
	return tok != nil && tok.UID == m.authorUID, nil
}

// UpdateAuthorToken promotes the session's token to the author token. Only
// the author may do this.
func (m *Manager) UpdateAuthorToken(ctx context.Context, session kv.Store) error {
	tok, err := RestoreToken(ctx, session, AccessTokenKey)
	if err != nil {
		return err
	}
	if tok == nil {
		return ErrNotLoggedIn
	}
	if tok.UID != m.authorUID {
		return ErrNotAuthor
	}

	if err := StoreToken(ctx, m.server, AuthorTokenKey(m.authorUID), tok); err != nil {
		return fmt.Errorf("store author token: %w", err)
	}
	logger.Info("Author connection updated: uid=%s", m.authorUID)
	return nil
}

// DisconnectAuthor forgets the author token. Until the author logs in
// again, no request can reach the remote.
func (m *Manager) DisconnectAuthor(ctx context.Context) error {
	return RemoveToken(ctx, m.server, AuthorTokenKey(m.authorUID))
}
