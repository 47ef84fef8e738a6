// Package session implements a kv.Store held in a signed client cookie.
//
// A Store lives for one request. The HTTP adapter decodes it from the
// incoming cookie with Decode, handlers read and write it through the kv.Store
// contract, and the adapter writes it back with Encode when Dirty reports a
// change. Values are carried in the claims of an HS256 JWT, so the client can
// read but not forge them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// DefaultTTL bounds how long an encoded session stays valid.
const DefaultTTL = 30 * 24 * time.Hour

const issuer = "dittosite"

// ErrInvalidSession is returned by Decode for a tampered or expired token.
var ErrInvalidSession = errors.New("session: invalid token")

type claims struct {
	// Values are base64-encoded by encoding/json.
	Values map[string][]byte `json:"v,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec creates a codec. secret must be non-empty. ttl <= 0 uses DefaultTTL.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session: secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Store is a request-local kv.Store.
type Store struct {
	mu     sync.Mutex
	values map[string][]byte
	dirty  bool
	closed bool
}

// New returns an empty session store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Decode verifies token and returns the store it carries. An empty token
// yields an empty store.
func (c *Codec) Decode(token string) (*Store, error) {
	if token == "" {
		return New(), nil
	}

	cl := &claims{}
	parsed, err := jwt.ParseWithClaims(token, cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	s := New()
	for k, v := range cl.Values {
		s.values[k] = v
	}
	return s, nil
}

// Encode signs the store's current values into a token.
func (c *Codec) Encode(s *Store) (string, error) {
	s.mu.Lock()
	values := make(map[string][]byte, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	s.mu.Unlock()

	now := c.now()
	cl := &claims{
		Values: values,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// TTL returns the lifetime of encoded sessions.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Dirty reports whether Set or Remove changed the store since decoding.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	v, ok := s.values[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return kv.Clone(v), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.values[key] = kv.Clone(value)
	s.dirty = true
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	if _, ok := s.values[key]; !ok {
		return kv.ErrNotFound
	}
	delete(s.values, key)
	s.dirty = true
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
