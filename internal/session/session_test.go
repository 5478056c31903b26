package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danti/wastewatch/internal/localstore"
	"github.com/danti/wastewatch/internal/model"
)

const testSecret = "session-test-secret"

// mintToken signs a real HS256 token the way the server does, so the
// decode path is exercised against genuine JWT wire format.
func mintToken(t *testing.T, userID string, role model.Role, exp time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}
	return signed
}

func newTestManager(t *testing.T) (*Manager, *localstore.MemoryStore) {
	t.Helper()
	store := localstore.NewMemory()
	return New(store, nil), store
}

func TestDecodeClaims_ValidToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := mintToken(t, "user-1", model.RoleContributor, exp)

	claims, err := DecodeClaims(raw)
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID: got %q, want %q", claims.UserID, "user-1")
	}
	if claims.Role != model.RoleContributor {
		t.Errorf("Role: got %q, want %q", claims.Role, model.RoleContributor)
	}
	if claims.Expiration() != exp.Unix() {
		t.Errorf("Expiration: got %d, want %d", claims.Expiration(), exp.Unix())
	}
}

func TestDecodeClaims_StripsSchemeLabel(t *testing.T) {
	raw := mintToken(t, "user-2", model.RoleAdmin, time.Now().Add(time.Hour))
	claims, err := DecodeClaims("Bearer " + raw)
	if err != nil {
		t.Fatalf("DecodeClaims with label: %v", err)
	}
	if claims.UserID != "user-2" {
		t.Errorf("UserID: got %q", claims.UserID)
	}
}

func TestDecodeClaims_ExpiredTokenStillDecodes(t *testing.T) {
	// The guard needs the claims of an expired token to tell "expired"
	// apart from "absent" — decode must not enforce exp.
	raw := mintToken(t, "user-3", model.RoleAdmin, time.Now().Add(-time.Hour))
	claims, err := DecodeClaims(raw)
	if err != nil {
		t.Fatalf("DecodeClaims expired: %v", err)
	}
	if claims.Expiration() >= time.Now().Unix() {
		t.Errorf("expected past expiration, got %d", claims.Expiration())
	}
}

func TestDecodeClaims_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no dots", "nonsense"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"payload not base64", "eyJhbGciOiJIUzI1NiJ9.!!!not-base64!!!.sig"},
		{"payload not json", "eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24.sig"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClaims(tc.token)
			if !errors.Is(err, ErrMalformedToken) {
				t.Errorf("got %v, want ErrMalformedToken", err)
			}
		})
	}
}

func TestManager_MalformedTokenMeansUnauthenticated(t *testing.T) {
	m, store := newTestManager(t)
	store.Set(StorageKey, "Bearer not.a.token")

	if m.IsAuthenticated() {
		t.Error("IsAuthenticated: got true for malformed token")
	}
	if _, ok := m.Role(); ok {
		t.Error("Role: got present for malformed token")
	}
	if got := m.Expiration(); got != 0 {
		t.Errorf("Expiration: got %d, want 0", got)
	}
}

func TestManager_NoSession(t *testing.T) {
	m, _ := newTestManager(t)
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated on empty store: got true")
	}
	if _, ok := m.Token(); ok {
		t.Error("Token on empty store: got present")
	}
	if got := m.Expiration(); got != 0 {
		t.Errorf("Expiration on empty store: got %d, want 0", got)
	}
}

func TestManager_StoreCredential(t *testing.T) {
	m, store := newTestManager(t)
	raw := mintToken(t, "user-4", model.RoleContributor, time.Now().Add(time.Hour))

	if err := m.StoreCredential(raw); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	stored, err := store.Get(StorageKey)
	if err != nil {
		t.Fatalf("stored value missing: %v", err)
	}
	if !strings.HasPrefix(stored, "Bearer ") {
		t.Errorf("stored value missing scheme label: %q", stored)
	}
	if !m.IsAuthenticated() {
		t.Error("IsAuthenticated after store: got false")
	}
	role, ok := m.Role()
	if !ok || role != model.RoleContributor {
		t.Errorf("Role: got %q, %v", role, ok)
	}
	id, ok := m.UserID()
	if !ok || id != "user-4" {
		t.Errorf("UserID: got %q, %v", id, ok)
	}
}

func TestManager_StoreCredentialReplacesOld(t *testing.T) {
	m, _ := newTestManager(t)
	first := mintToken(t, "old-user", model.RoleAdmin, time.Now().Add(time.Hour))
	second := mintToken(t, "new-user", model.RoleContributor, time.Now().Add(time.Hour))

	if err := m.StoreCredential(first); err != nil {
		t.Fatalf("StoreCredential first: %v", err)
	}
	if err := m.StoreCredential(second); err != nil {
		t.Fatalf("StoreCredential second: %v", err)
	}

	id, ok := m.UserID()
	if !ok || id != "new-user" {
		t.Errorf("UserID after replace: got %q, %v", id, ok)
	}
}

func TestManager_Clear(t *testing.T) {
	store := localstore.NewMemory()
	resets := 0
	m := New(store, func() { resets++ })

	raw := mintToken(t, "user-5", model.RoleAdmin, time.Now().Add(time.Hour))
	if err := m.StoreCredential(raw); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	m.Clear()
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated after Clear: got true")
	}
	if resets != 1 {
		t.Errorf("reset hook ran %d times, want 1", resets)
	}

	// Clearing an already-empty session is safe and still resets.
	m.Clear()
	if resets != 2 {
		t.Errorf("reset hook after second Clear: ran %d times, want 2", resets)
	}
}
