package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims in our JWT token
type Claims struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"` // "operator"
	jwt.RegisteredClaims
}

// Service issues and validates operator tokens for the review API. The
// caller-facing voice socket stays unauthenticated.
type Service struct {
	secret []byte
}

// NewServiceFromEnv creates the auth service with the JWT_SECRET
// environment variable.
func NewServiceFromEnv() (*Service, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return &Service{secret: []byte(secret)}, nil
}

// NewService creates the auth service with an explicit secret.
func NewService(secret []byte) *Service {
	return &Service{secret: secret}
}

// GenerateOperatorToken generates a JWT token for an operator
func (s *Service) GenerateOperatorToken(operatorID string) (string, error) {
	claims := &Claims{
		OperatorID: operatorID,
		Role:       "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
