package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()

	issuer, err := NewTokenIssuer("access-secret-for-tests", "refresh-secret-for-tests", 90*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	return issuer
}

func TestTokenIssuerRequiresIndependentSecrets(t *testing.T) {
	tests := []struct {
		name          string
		accessSecret  string
		refreshSecret string
	}{
		{"missing access secret", "", "refresh"},
		{"missing refresh secret", "access", ""},
		{"shared secret", "same", "same"},
		{"whitespace refresh secret", "access", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTokenIssuer(tt.accessSecret, tt.refreshSecret, time.Hour); err == nil {
				t.Fatal("expected constructor error, got nil")
			}
		})
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.IssueAccess("alice123", 24*time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	userID, err := issuer.Verify(token, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "alice123" {
		t.Fatalf("got user %q, want alice123", userID)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.IssueRefresh("alice123")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	userID, err := issuer.Verify(token, TokenTypeRefresh)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "alice123" {
		t.Fatalf("got user %q, want alice123", userID)
	}
}

func TestExpiredTokenFails(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.IssueAccess("alice123", -time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	if _, err := issuer.Verify(token, TokenTypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestMalformedTokenFails(t *testing.T) {
	issuer := newTestIssuer(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := issuer.Verify(token, TokenTypeAccess); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("Verify(%q): got %v, want ErrTokenMalformed", token, err)
		}
	}
}

func TestWrongTokenTypeRejected(t *testing.T) {
	issuer := newTestIssuer(t)

	refresh, err := issuer.IssueRefresh("alice123")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := issuer.Verify(refresh, TokenTypeAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh-as-access: got %v, want ErrWrongTokenType", err)
	}

	access, err := issuer.IssueAccess("alice123", time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := issuer.Verify(access, TokenTypeRefresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("access-as-refresh: got %v, want ErrWrongTokenType", err)
	}
}

func TestTokenSignedWithForeignSecretRejected(t *testing.T) {
	issuer := newTestIssuer(t)

	other, err := NewTokenIssuer("some-other-access-secret", "some-other-refresh-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	forged, err := other.IssueAccess("alice123", time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	if _, err := issuer.Verify(forged, TokenTypeAccess); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("got %v, want ErrTokenMalformed", err)
	}
}
