package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittosite/pkg/store/kv"
)

// Store keys of the login flow.
const (
	// AccessTokenKey holds the viewer's token in the client session.
	AccessTokenKey = "ACCESS_TOKEN"

	// RequestTokenKey holds the pending login state in the client session.
	RequestTokenKey = "REQUEST_TOKEN"
)

// AuthorTokenKey is the server-side store key of the author's token.
func AuthorTokenKey(authorUID string) string {
	return AccessTokenKey + "@" + authorUID
}

// Token is what a successful login leaves behind.
type Token struct {
	// UID is the account id the provider vouched for.
	UID string `json:"uid"`

	DisplayName string `json:"name,omitempty"`

	// Secret is the provider's access token.
	Secret string `json:"secret,omitempty"`

	Expiry time.Time `json:"expiry,omitzero"`
}

// Viewer returns the viewer the token identifies.
func (t *Token) Viewer() *Viewer {
	name := t.DisplayName
	if name == "" {
		name = t.UID
	}
	return &Viewer{AccountID: t.UID, DisplayName: name}
}

// StoreToken saves tok under key.
func StoreToken(ctx context.Context, store kv.Store, key string, tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return store.Set(ctx, key, data)
}

// RestoreToken loads the token under key. A missing or malformed entry
// yields nil without error.
func RestoreToken(ctx context.Context, store kv.Store, key string) (*Token, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil || tok.UID == "" {
		return nil, nil
	}
	return &tok, nil
}

// RemoveToken deletes the token under key. Removing nothing is not an error.
func RemoveToken(ctx context.Context, store kv.Store, key string) error {
	if err := store.Remove(ctx, key); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	return nil
}
