package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/authsite/authsite/internal/store"
)

// sessionContext loads a fresh scs session into a context so the manager can
// be exercised without an HTTP round trip.
func sessionContext(t *testing.T, m *Manager) context.Context {
	t.Helper()
	ctx, err := m.Sessions.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	return ctx
}

func testIdentity() *store.Identity {
	return &store.Identity{ID: "id-1", Email: "user@example.com"}
}

func TestIssueAndCurrent(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	if _, ok := m.Current(ctx); ok {
		t.Fatal("fresh session should be anonymous")
	}

	if err := m.Issue(ctx, testIdentity(), "Test User", "https://example.com/p.png"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, ok := m.Current(ctx)
	if !ok {
		t.Fatal("expected an authenticated session after issue")
	}
	if got.ID != "id-1" {
		t.Errorf("ID = %q, want id-1", got.ID)
	}
	if got.Email != "user@example.com" {
		t.Errorf("Email = %q, want user@example.com", got.Email)
	}
	if got.Name != "Test User" {
		t.Errorf("Name = %q, want Test User", got.Name)
	}
	if got.Picture != "https://example.com/p.png" {
		t.Errorf("Picture = %q", got.Picture)
	}
}

func TestIssueWithoutEmail(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	if err := m.Issue(ctx, &store.Identity{ID: "id-2", GithubID: "42"}, "octo", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, ok := m.Current(ctx)
	if !ok {
		t.Fatal("expected an authenticated session")
	}
	if got.Email != "" {
		t.Errorf("Email = %q, want empty for a provider-only identity", got.Email)
	}
}

func TestIssueRenewsSessionToken(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	m.Sessions.Put(ctx, "marker", "pre-login")
	before, _, err := m.Sessions.Commit(ctx)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := m.Issue(ctx, testIdentity(), "", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}
	after, _, err := m.Sessions.Commit(ctx)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if before == after {
		t.Error("session token should rotate on login")
	}
}

func TestCurrentTamperedToken(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	if err := m.Issue(ctx, testIdentity(), "", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}

	signed := m.Sessions.GetString(ctx, tokenKey)
	if signed == "" {
		t.Fatal("expected a stored token")
	}

	// Flip a character in the signature segment.
	flipped := signed[:len(signed)-1]
	if strings.HasSuffix(signed, "A") {
		flipped += "B"
	} else {
		flipped += "A"
	}
	m.Sessions.Put(ctx, tokenKey, flipped)

	if _, ok := m.Current(ctx); ok {
		t.Error("tampered token must read as anonymous")
	}
}

func TestCurrentWrongSecret(t *testing.T) {
	issuer := NewManager("secret-one", "authsite", time.Hour)
	ctx := sessionContext(t, issuer)

	if err := issuer.Issue(ctx, testIdentity(), "", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}

	verifier := NewManager("secret-two", "authsite", time.Hour)
	verifier.Sessions = issuer.Sessions

	if _, ok := verifier.Current(ctx); ok {
		t.Error("token signed with a different secret must read as anonymous")
	}
}

func TestCurrentExpiredToken(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	m.lifetime = -time.Minute
	ctx := sessionContext(t, m)

	if err := m.Issue(ctx, testIdentity(), "", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, ok := m.Current(ctx); ok {
		t.Error("expired token must read as anonymous")
	}
}

func TestCurrentGarbageToken(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	m.Sessions.Put(ctx, tokenKey, "not.a.jwt")

	if _, ok := m.Current(ctx); ok {
		t.Error("garbage token must read as anonymous")
	}
}

func TestRevoke(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	if err := m.Issue(ctx, testIdentity(), "", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := m.Revoke(ctx); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, ok := m.Current(ctx); ok {
		t.Error("revoked session must be anonymous")
	}

	// Revoking again is a no-op.
	if err := m.Revoke(ctx); err != nil {
		t.Errorf("second revoke: %v", err)
	}
}

func TestRevokeAnonymous(t *testing.T) {
	m := NewManager("test-secret", "authsite", time.Hour)
	ctx := sessionContext(t, m)

	if err := m.Revoke(ctx); err != nil {
		t.Errorf("revoking an anonymous session: %v", err)
	}
}
