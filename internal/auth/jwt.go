package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an admin token stays valid.
const DefaultTokenTTL = 24 * time.Hour

const issuer = "tea-assistant"

var (
	// ErrMissingSecret is returned when the manager has no signing key.
	ErrMissingSecret = errors.New("jwt secret is not configured")
	// ErrInvalidToken covers every rejected token.
	ErrInvalidToken = errors.New("invalid token")
)

// JWTManager issues and checks admin tokens
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// Claims represents the admin token claims
type Claims struct {
	StaffID string `json:"staff_id"`
	jwt.RegisteredClaims
}

// Option customises a JWTManager.
type Option func(*JWTManager)

// WithTTL overrides DefaultTokenTTL.
func WithTTL(ttl time.Duration) Option {
	return func(j *JWTManager) {
		if ttl > 0 {
			j.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(j *JWTManager) {
		if now != nil {
			j.now = now
		}
	}
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, opts ...Option) *JWTManager {
	j := &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Enabled reports whether a secret is configured.
func (j *JWTManager) Enabled() bool {
	return j != nil && len(j.secretKey) > 0
}

// GenerateToken signs a token for staffID
func (j *JWTManager) GenerateToken(staffID string) (string, error) {
	if !j.Enabled() {
		return "", ErrMissingSecret
	}
	if strings.TrimSpace(staffID) == "" {
		return "", errors.New("staff id is required")
	}

	now := j.now()
	claims := &Claims{
		StaffID: staffID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   staffID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token, with or without a "Bearer " prefix, and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	if !j.Enabled() {
		return nil, ErrMissingSecret
	}
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(j.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.StaffID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
