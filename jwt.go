package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "umrahdesk"

var ErrInvalidToken = errors.New("invalid token")

// Claims is the portal token. It names a session; the agency API token never
// leaves the server.
type Claims struct {
	jwt.RegisteredClaims
	SessionID uuid.UUID `json:"sid"`
	Email     string    `json:"email"`
	Portal    Portal    `json:"portal"`
}

type TokenManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	ttl        time.Duration
}

func NewTokenManager(ttl time.Duration) (*TokenManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	sum := sha256.Sum256(der)

	return &TokenManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		keyID:      base64.RawURLEncoding.EncodeToString(sum[:8]),
		ttl:        ttl,
	}, nil
}

// GenerateToken signs a token for the session. It never outlives the session.
func (tm *TokenManager) GenerateToken(sess *Session, portal Portal) (string, error) {
	now := time.Now()
	expires := now.Add(tm.ttl)
	if sess.ExpiresAt.Before(expires) {
		expires = sess.ExpiresAt
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sess.Email,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		SessionID: sess.ID,
		Email:     sess.Email,
		Portal:    portal,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = tm.keyID
	return token.SignedString(tm.privateKey)
}

func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.publicKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetPublicKey returns the public key that can be used to verify tokens
func (tm *TokenManager) GetPublicKey() *rsa.PublicKey {
	return tm.publicKey
}

func (tm *TokenManager) KeyID() string {
	return tm.keyID
}
