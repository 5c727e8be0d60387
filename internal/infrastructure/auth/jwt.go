// Package auth validates the bearer tokens issued by the identity service.
package auth

import (
	"errors"
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// Claims are the JWT claims this service relies on
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// TenantUUID parses the tenant_id claim
func (c *Claims) TenantUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.TenantID)
	if err != nil {
		return uuid.Nil, ErrInvalidClaims
	}
	return id, nil
}

// UserUUID parses the user_id claim
func (c *Claims) UserUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidClaims
	}
	return id, nil
}

// JWTService signs and validates HS256 access tokens
type JWTService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

// NewJWTService creates a JWTService from config
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.AccessTokenExpiration,
		now:        time.Now,
	}
}

// GenerateAccessToken signs a token for the given tenant and user. Used by
// tooling and tests; production tokens come from the identity service.
func (s *JWTService) GenerateAccessToken(tenantID, userID uuid.UUID, username string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: tenantID.String(),
		UserID:   userID.String(),
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies signature, validity window and issuer, and
// requires both tenant_id and user_id.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}
