package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenExpired is returned by ParseAccessToken for a well-signed token
// whose exp has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid covers malformed tokens, bad signatures and bad claims.
var ErrTokenInvalid = errors.New("token invalid")

// AccessToken is a signed HS256 JWT together with the instants it was
// issued and expires at. Both are whole seconds.
type AccessToken struct {
	Token     string
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewAccessToken signs a token for userID valid for ttl from now. The
// issue time is truncated to the second so expiry is exactly iat+ttl.
func NewAccessToken(secret string, userID uint64, now time.Time, ttl time.Duration) (AccessToken, error) {
	iat := now.UTC().Truncate(time.Second)
	exp := iat.Add(ttl)
	jti := uuid.NewString()

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, ID: jti, IssuedAt: iat, ExpiresAt: exp}, nil
}

// ParseAccessToken verifies signature and expiry against now and returns
// the user id from sub.
func ParseAccessToken(secret, token string, now func() time.Time) (uint64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
		// The stored row decides the exact boundary second.
		jwt.WithLeeway(time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	return id, nil
}

// HashToken returns the SHA-256 hex digest stored in place of the bearer
// string.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
