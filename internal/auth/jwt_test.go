package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour, 24*time.Hour)

	token, err := m.GenerateAccessToken("user-1", "ada@example.com", "Ada", "Lovelace")

	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}

	claims, err := m.VerifyAccessToken(token)

	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}

	// payload must come back exactly as supplied
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-1")
	}
	if claims.Email != "ada@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "ada@example.com")
	}
	if claims.FirstName != "Ada" || claims.LastName != "Lovelace" {
		t.Errorf("name = %q %q, want Ada Lovelace", claims.FirstName, claims.LastName)
	}
}

func TestRefreshTokenCarriesOnlyUserID(t *testing.T) {
	m := NewManager("test-secret", time.Hour, 24*time.Hour)

	token, expiresAt, err := m.GenerateRefreshToken("user-1")

	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	if until := time.Until(expiresAt); until < 23*time.Hour || until > 24*time.Hour {
		t.Errorf("expiry %v not within refresh TTL window", until)
	}

	claims, err := m.VerifyRefreshToken(token)

	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}

	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-1")
	}
	if claims.Email != "" || claims.FirstName != "" || claims.LastName != "" {
		t.Errorf("refresh claims should carry no identity beyond the id: %+v", claims)
	}
}

func TestVerifyFailures(t *testing.T) {
	m := NewManager("test-secret", time.Hour, 24*time.Hour)

	access, err := m.GenerateAccessToken("user-1", "ada@example.com", "Ada", "Lovelace")
	if err != nil {
		t.Fatal(err)
	}

	refresh, _, err := m.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatal(err)
	}

	expired := NewManager("test-secret", -time.Minute, 24*time.Hour)
	expiredAccess, err := expired.GenerateAccessToken("user-1", "ada@example.com", "Ada", "Lovelace")
	if err != nil {
		t.Fatal(err)
	}

	other := NewManager("other-secret", time.Hour, 24*time.Hour)
	foreign, err := other.GenerateAccessToken("user-1", "ada@example.com", "Ada", "Lovelace")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		verify func(string) error
		token  string
	}{
		{"garbage input", func(s string) error { _, err := m.VerifyAccessToken(s); return err }, "not-a-token"},
		{"expired token", func(s string) error { _, err := m.VerifyAccessToken(s); return err }, expiredAccess},
		{"wrong secret", func(s string) error { _, err := m.VerifyAccessToken(s); return err }, foreign},
		{"refresh token presented as access", func(s string) error { _, err := m.VerifyAccessToken(s); return err }, refresh},
		{"access token presented as refresh", func(s string) error { _, err := m.VerifyRefreshToken(s); return err }, access},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.verify(tc.token)

			// every failure collapses to the same opaque error
			if err != ErrInvalidToken {
				t.Fatalf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}
