package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTTL applies when a caller passes a non-positive TTL.
const defaultTTL = 60 * time.Minute

// Issuer is stamped into every token.
const Issuer = "graylogic-vacuumzones"

// CustomClaims extends JWT standard claims with the role and master scope.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role    Role     `json:"role"`
	Masters []string `json:"masters,omitempty"`
}

// Scope returns the master scope carried by the token.
func (c *CustomClaims) Scope() *MasterScope {
	return NewMasterScope(c.Masters)
}

// TokenRequest describes a token to mint.
type TokenRequest struct {
	Subject string
	Role    Role
	Masters []string
	TTL     time.Duration
}

// GenerateAccessToken creates a signed JWT for the request.
// Tokens are validated by signature only, so revocation means rotating the secret.
func GenerateAccessToken(req TokenRequest, secret string) (string, error) {
	if !IsValidSubject(req.Subject) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, req.Subject)
	}
	if !IsValidRole(req.Role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:    req.Role,
		Masters: req.Masters,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the custom claims.
// It checks the signature, expiry, issuer, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}
