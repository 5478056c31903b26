// Package session is the single source of truth for "who is logged in
// and with what role". It owns the bearer token in durable storage and
// answers authorization questions synchronously — no network calls.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — why the client decodes but never verifies the token
// ────────────────────────────────────────────────────────────────────
// A JWT has three Base64 sections separated by dots:
//
//	HEADER.PAYLOAD.SIGNATURE
//
// The SIGNATURE is an HMAC over HEADER+PAYLOAD using a secret only the
// server knows. The client cannot check it — it does not have the
// secret, and shipping the secret to the client would defeat the whole
// scheme. So the client only *decodes* the PAYLOAD to learn the role,
// user id, and expiry for UI decisions (which links to show, which
// routes to allow). That is fine: a user who tampers with their own
// token can change what their client renders, but every API request
// carries the token back to the server, which *does* verify the
// signature and rejects tampered tokens. Trust lives server-side;
// the client-side decode is a convenience, not a security boundary.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danti/wastewatch/internal/localstore"
	"github.com/danti/wastewatch/internal/model"
)

// StorageKey is the single well-known key the bearer token lives under.
const StorageKey = "danti_token"

// schemeLabel prefixes the stored value; it is stripped before decoding
// and sent as-is in the auth header, matching what the server expects.
const schemeLabel = "Bearer "

// ErrMalformedToken is returned by DecodeClaims for any token that does
// not decode. Callers must treat it as "not authenticated", never as a
// fault worth surfacing.
var ErrMalformedToken = errors.New("session: malformed token")

// Claims are the self-describing claims embedded in the server-issued
// token. The field names match the server's payload exactly.
type Claims struct {
	UserID string     `json:"_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Expiration returns the exp claim as unix seconds, or 0 when absent.
func (c *Claims) Expiration() int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}

// DecodeClaims decodes the payload segment of token without verifying
// the signature. It is a pure function: no storage access, no side
// effects, and it never panics — every malformation comes back as an
// error wrapping ErrMalformedToken.
//
// The token may carry the storage scheme label ("Bearer <jwt>"); it is
// stripped first. jwt.ParseUnverified skips both signature and claims
// validation, which is exactly what we want: an *expired* token must
// still decode so the guard can tell "expired session" apart from "no
// session" and show the right notice.
func DecodeClaims(token string) (*Claims, error) {
	raw := strings.TrimPrefix(token, schemeLabel)
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// Manager owns the stored credential. Exactly one Manager exists per
// process (constructed in main and injected), preserving the "at most
// one active session" invariant without a package-level global.
type Manager struct {
	store localstore.Store

	// onReset runs after Clear removes the credential. It is the
	// explicit replacement for the browser's full-page reload on
	// logout: the app wires it to tear down every piece of in-memory
	// state so nothing stale survives the session.
	onReset func()
}

// New returns a Manager backed by store. onReset may be nil.
func New(store localstore.Store, onReset func()) *Manager {
	return &Manager{store: store, onReset: onReset}
}

// StoreCredential clears any prior credential and persists the new raw
// token under StorageKey, prefixed with the scheme label.
func (m *Manager) StoreCredential(rawToken string) error {
	// Remove-then-set keeps "old cleared before new is stored" true
	// even if the set fails: a failed login never leaves the previous
	// user's token behind.
	if err := m.store.Remove(StorageKey); err != nil {
		return fmt.Errorf("clear previous credential: %w", err)
	}
	if err := m.store.Set(StorageKey, schemeLabel+rawToken); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Token returns the stored token (including scheme label) and whether
// one is stored.
func (m *Manager) Token() (string, bool) {
	v, err := m.store.Get(StorageKey)
	if err != nil {
		return "", false
	}
	return v, true
}

// Claims returns the decoded claims of the stored token. ok is false
// when no token is stored or the stored token does not decode.
func (m *Manager) Claims() (*Claims, bool) {
	token, ok := m.Token()
	if !ok {
		return nil, false
	}
	claims, err := DecodeClaims(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Role returns the decoded role claim; ok is false without a session.
func (m *Manager) Role() (model.Role, bool) {
	claims, ok := m.Claims()
	if !ok {
		return "", false
	}
	return claims.Role, true
}

// UserID returns the decoded subject claim; ok is false without a
// session. The live channel derives its per-user topic from this.
func (m *Manager) UserID() (string, bool) {
	claims, ok := m.Claims()
	if !ok {
		return "", false
	}
	return claims.UserID, true
}

// Expiration returns the exp claim as unix seconds, or 0 when no token
// is stored or it does not decode — 0 compares as "already expired",
// which is the safe default for callers.
func (m *Manager) Expiration() int64 {
	claims, ok := m.Claims()
	if !ok {
		return 0
	}
	return claims.Expiration()
}

// IsAuthenticated reports whether a token is stored and decodes.
// A malformed or tampered token is indistinguishable from no session.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Claims()
	return ok
}

// Clear removes the stored credential and then runs the reset hook,
// discarding all dependent in-memory state. Safe to call without a
// stored credential.
func (m *Manager) Clear() {
	// Remove errors are deliberately swallowed: the only caller intent
	// is "end the session", and an already-absent key satisfies that.
	_ = m.store.Remove(StorageKey)
	if m.onReset != nil {
		m.onReset()
	}
}
