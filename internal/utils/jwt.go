// Package utils provides token issuing, verification and password
// hashing helpers used by the auth handlers and middleware.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators embedded in the "typ" claim. The refresh
// flow never accepts an access token and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Verification failure kinds. Each maps to a distinct HTTP error code
// so the client can decide between silent refresh and hard logout.
var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrNoSecret       = errors.New("signing secret not configured")
)

// AccessClaims is the typed claim bundle of an access token: subject
// user ID, role-set snapshot at issuance time and the type
// discriminator, on top of the registered iat/exp claims.
type AccessClaims struct {
	jwt.RegisteredClaims
	Roles     []string `json:"roles"`
	TokenType string   `json:"typ"`
}

// UserID parses the numeric subject claim.
func (c *AccessClaims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// AccessToken is a signed JWT together with its expiry, so callers can
// report the expiry without re-parsing the token.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken carries the raw opaque value returned to the client and
// its expiry. Only the SHA-256 hash of Raw is ever persisted.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// NewAccessToken signs an HS256 JWT for a user with the given role
// snapshot and TTL in minutes. Fails if the secret is unconfigured.
func NewAccessToken(secret string, userID uint64, roles []string, ttlMin int) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, ErrNoSecret
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles:     roles,
		TokenType: TokenTypeAccess,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// VerifyAccessToken checks signature, expiry and the type discriminator
// together and returns the claims. The error is one of ErrTokenExpired,
// ErrWrongTokenType or ErrTokenInvalid.
func VerifyAccessToken(secret, token string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewRefreshToken returns an opaque random token and its expiry. The
// value carries 48 bytes of entropy (96 hex chars), well above the
// guessing-resistance floor, and is delivered only as an HttpOnly
// cookie.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := randomHex(48)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashRefreshRaw returns the SHA-256 hex digest of a raw refresh token.
// A fast hash suffices here: the input is high-entropy random data, not
// a password, and a deterministic digest enables O(1) lookup.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
