package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestAccessTokenRoundTrip(t *testing.T) {
	roles := []string{"organizer", "admin"}
	tok, err := NewAccessToken(testSecret, 42, roles, 15)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	if tok.Token == "" {
		t.Fatal("NewAccessToken() returned empty token")
	}

	claims, err := VerifyAccessToken(testSecret, tok.Token)
	if err != nil {
		t.Fatalf("VerifyAccessToken() error = %v", err)
	}
	uid, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if uid != 42 {
		t.Errorf("UserID() = %d, want 42", uid)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "organizer" || claims.Roles[1] != "admin" {
		t.Errorf("Roles = %v, want %v", claims.Roles, roles)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("TokenType = %q, want %q", claims.TokenType, TokenTypeAccess)
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	tok, err := NewAccessToken(testSecret, 1, []string{"attendee"}, -1)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	_, err = VerifyAccessToken(testSecret, tok.Token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	tok, err := NewAccessToken(testSecret, 1, []string{"attendee"}, 15)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	_, err = VerifyAccessToken("some-other-secret", tok.Token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	_, err := VerifyAccessToken(testSecret, "not-a-jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyAccessToken_WrongType(t *testing.T) {
	// A refresh-typed JWT must never pass access verification, even with
	// a valid signature and expiry.
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles:     []string{"attendee"},
		TokenType: TokenTypeRefresh,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = VerifyAccessToken(testSecret, signed)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrWrongTokenType", err)
	}
}

func TestNewAccessToken_NoSecret(t *testing.T) {
	_, err := NewAccessToken("", 1, []string{"attendee"}, 15)
	if !errors.Is(err, ErrNoSecret) {
		t.Errorf("NewAccessToken() error = %v, want ErrNoSecret", err)
	}
}

func TestNewRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(7)
	if err != nil {
		t.Fatalf("NewRefreshToken() error = %v", err)
	}
	b, err := NewRefreshToken(7)
	if err != nil {
		t.Fatalf("NewRefreshToken() error = %v", err)
	}
	if len(a.Raw) != 96 {
		t.Errorf("raw length = %d, want 96 hex chars", len(a.Raw))
	}
	if a.Raw == b.Raw {
		t.Error("two refresh tokens should never collide")
	}
	if !a.Exp.After(time.Now().UTC().Add(6 * 24 * time.Hour)) {
		t.Errorf("Exp = %v, want ~7 days out", a.Exp)
	}
}

func TestHashRefreshRaw(t *testing.T) {
	h1 := HashRefreshRaw("abc")
	h2 := HashRefreshRaw("abc")
	if h1 != h2 {
		t.Error("hash must be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if HashRefreshRaw("abd") == h1 {
		t.Error("different inputs should not share a hash")
	}
}
