package auth

import (
	"errors"
	"testing"
	"time"

	"collab/api/internal/rbac"
)

func TestIssueAndParseIdentityToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueIdentityToken(secret, "tenant-1", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken() error = %v", err)
	}
	tenantID, userID, err := ParseIdentityToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseIdentityToken() error = %v", err)
	}
	if tenantID != "tenant-1" || userID != "user-1" {
		t.Fatalf("unexpected identity: %q %q", tenantID, userID)
	}
}

func TestParseIdentityTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueIdentityToken(secret, "tenant-1", "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueIdentityToken() error = %v", err)
	}
	if _, _, err := ParseIdentityToken(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseIdentityTokenRejectsWrongSecret(t *testing.T) {
	issued, err := IssueIdentityToken([]byte("secret"), "tenant-1", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken() error = %v", err)
	}
	if _, _, err := ParseIdentityToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, _, err := ParseIdentityToken([]byte("secret"), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestIdentityAndSessionTokensAreNotInterchangeable(t *testing.T) {
	secret := []byte("secret")
	sessionToken, err := IssueSessionToken(secret, "s1", "tenant-1", "user-1", rbac.RoleViewer, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	if _, _, err := ParseIdentityToken(secret, sessionToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected session token to be rejected as identity, got %v", err)
	}

	identityToken, err := IssueIdentityToken(secret, "tenant-1", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueIdentityToken() error = %v", err)
	}
	if _, err := ParseSessionToken(secret, identityToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected identity token to be rejected as session, got %v", err)
	}
}

func TestIssueAndParseSessionToken(t *testing.T) {
	secret := []byte("secret")
	issuedAt := time.Now().Truncate(time.Second)
	issued, err := IssueSessionToken(secret, "s1", "tenant-1", "user-1", rbac.RoleModerator, issuedAt, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	claims, err := ParseSessionToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if claims.SessionID != "s1" || claims.UserID() != "user-1" || claims.TenantID != "tenant-1" || claims.Role != rbac.RoleModerator {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.IssuedAt.Time.Equal(issuedAt) {
		t.Fatalf("issued at = %v, want %v", claims.IssuedAt.Time, issuedAt)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueIdentityToken(nil, "tenant-1", "user-1", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
