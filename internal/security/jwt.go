// Package security verifies the bearer tokens presented by room clients.
package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSubject = errors.New("invalid token subject")
)

// Используется HS256 с общим секретом
type JWTSigner struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
}

func NewJWTSigner(secret, issuer string, ttl, clockSkew time.Duration) *JWTSigner {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTSigner{secret: []byte(secret), issuer: issuer, ttl: ttl, clockSkew: clockSkew}
}

type AccessClaims struct {
	jwt.RegisteredClaims
	// отображаемое имя участника, необязательно
	Name string `json:"name,omitempty"`
}

// SignAccessToken выпускает JWT с sub=userID и exp=now+ttl
func (s *JWTSigner) SignAccessToken(userID, name string, now time.Time) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrInvalidSubject
	}
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-s.clockSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTSigner) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidSubject
	}
	return claims, nil
}
