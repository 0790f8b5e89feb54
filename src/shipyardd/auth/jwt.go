// Package auth verifies the caller-issued tokens presented to shipyardd.
//
// User accounts live in the hackathon platform. shipyardd only checks the
// HMAC signature of the tokens it receives and reads the submitter identity
// from their claims.
package auth

import (
	"fmt"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config holds token verification configuration
type Config struct {
	// Enabled turns on token checks for the write endpoints
	Enabled bool
	// Secret is the shared HMAC key
	Secret string
	// Issuer, when set, must match the iss claim
	Issuer string
	// TokenDuration is the lifetime of tokens minted by GenerateToken
	TokenDuration time.Duration
}

// DefaultConfig returns default token configuration
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		Issuer:        "shipyardd",
		TokenDuration: 24 * time.Hour,
	}
}

// TokenClaims identifies the caller of a request
type TokenClaims struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Email    string `json:"email"`
	TokenID  string `json:"token_id"`
}

// jwtClaims represents the full JWT claims structure
type jwtClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Email    string `json:"email"`
}

// JWTService validates and mints HS256 tokens
type JWTService struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
}

// NewJWTService creates a JWT service. An empty secret is rejected.
func NewJWTService(cfg Config) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required when authentication is enabled")
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = DefaultConfig().TokenDuration
	}
	return &JWTService{
		secretKey:     []byte(cfg.Secret),
		issuer:        cfg.Issuer,
		tokenDuration: cfg.TokenDuration,
	}, nil
}

// GenerateToken signs a token for the given caller identity
func (s *JWTService) GenerateToken(userID, userName, email string) (string, error) {
	now := time.Now().UTC()

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
		},
		UserID:   userID,
		UserName: userName,
		Email:    email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns its claims
func (s *JWTService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.ErrNoToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrTokenInvalid
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}

	return &TokenClaims{
		UserID:   userID,
		UserName: claims.UserName,
		Email:    claims.Email,
		TokenID:  claims.ID,
	}, nil
}
