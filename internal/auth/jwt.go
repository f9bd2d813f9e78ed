package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTokenType = "session"

var ErrInvalidToken = errors.New("invalid token")

// JWTManager issues and verifies the bearer tokens that bind an HTTP client
// to a diagnostic session.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTManager signs with secret. An empty secret is replaced by random
// bytes, which invalidates tokens on restart; sessions do not survive a
// restart either.
func NewJWTManager(secret, issuer string, ttl time.Duration) (*JWTManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	return &JWTManager{secret: key, issuer: issuer, ttl: ttl}, nil
}

// IssueSessionToken returns a signed token whose subject is the session id.
func (m *JWTManager) IssueSessionToken(sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.ttl)

	claims := jwt.MapClaims{
		"iss": m.issuer,
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.New().String(),
		"typ": sessionTokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenStr, exp, nil
}

// VerifyToken checks the HS256 signature, issuer and expiry.
func (m *JWTManager) VerifyToken(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// SessionID verifies a session token and returns its subject.
func (m *JWTManager) SessionID(tokenStr string) (string, error) {
	claims, err := m.VerifyToken(tokenStr)
	if err != nil {
		return "", err
	}
	if typ, _ := claims["typ"].(string); typ != sessionTokenType {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
