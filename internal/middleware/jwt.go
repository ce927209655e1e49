package middleware

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the decoded identity behind a bearer token.
type Actor struct {
	ID   string
	Role string
}

// TokenDecoder verifies a bearer token and extracts the actor. Token
// issuance lives in the platform's auth service; this subsystem only
// verifies.
type TokenDecoder interface {
	Decode(token string) (Actor, error)
}

// Claims is the expected token payload.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTDecoder verifies HMAC-signed tokens.
type JWTDecoder struct {
	secret []byte
}

// NewJWTDecoder creates a decoder for the shared signing secret.
func NewJWTDecoder(secret []byte) *JWTDecoder {
	return &JWTDecoder{secret: secret}
}

// Decode parses and verifies a token.
func (d *JWTDecoder) Decode(tokenString string) (Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil {
		return Actor{}, err
	}
	if !token.Valid {
		return Actor{}, errors.New("invalid token")
	}
	return Actor{ID: claims.UserID, Role: claims.Role}, nil
}
