package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nvisust/authserver/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager("test-secret", "authserver-test", 15*time.Minute, 24*time.Hour, NewMemoryBlacklist())
}

func TestIssuePairAndVerifyAccess(t *testing.T) {
	m := newTestManager(t)
	access, refresh, err := m.IssuePair(types.User{ID: 42})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if access == "" || refresh == "" || access == refresh {
		t.Fatalf("expected distinct non-empty tokens, got access=%q refresh=%q", access, refresh)
	}

	id, err := m.VerifyAccess(access)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected user 42, got %d", id)
	}
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	m := newTestManager(t)
	_, refresh, err := m.IssuePair(types.User{ID: 7})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh token, got %v", err)
	}
}

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := m.VerifyAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyAccess(%q): expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestVerifyAccessRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t)
	other := NewManager("other-secret", "authserver-test", time.Minute, time.Hour, NewMemoryBlacklist())
	access, _, err := other.IssuePair(types.User{ID: 1})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.VerifyAccess(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, refresh, err := m.IssuePair(types.User{ID: 5})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	access, err := m.Refresh(ctx, refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	id, err := m.VerifyAccess(access)
	if err != nil || id != 5 {
		t.Fatalf("refreshed access token invalid: id=%d err=%v", id, err)
	}

	// The refresh token itself stays usable until revoked.
	if _, err := m.Refresh(ctx, refresh); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
}

func TestRevokeBlocksRefreshAndReRevoke(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, refresh, err := m.IssuePair(types.User{ID: 9})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if err := m.Revoke(ctx, refresh); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.Refresh(ctx, refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
	if err := m.Revoke(ctx, refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on double revoke, got %v", err)
	}
}

func TestRevokeRejectsAccessToken(t *testing.T) {
	m := newTestManager(t)
	access, _, err := m.IssuePair(types.User{ID: 2})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if err := m.Revoke(context.Background(), access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken revoking an access token, got %v", err)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	m := NewManager("test-secret", "authserver-test", -time.Minute, time.Hour, NewMemoryBlacklist())
	access, _, err := m.IssuePair(types.User{ID: 3})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.VerifyAccess(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestMemoryBlacklistPrunesExpired(t *testing.T) {
	b := NewMemoryBlacklist()
	ctx := context.Background()
	if err := b.Add(ctx, "stale", -time.Second); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := b.Contains(ctx, "stale")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatal("expected expired entry to be pruned")
	}
}
