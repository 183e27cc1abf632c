package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed cookie payload.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session cookies with HS256.
type Codec struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewCodec returns a configured codec.
func NewCodec(secret string, expiresIn time.Duration) *Codec {
	if expiresIn <= 0 {
		expiresIn = DefaultTTL
	}
	return &Codec{secret: []byte(secret), expiresIn: expiresIn, now: time.Now}
}

// Encode issues a token for the session id.
func (c *Codec) Encode(sid string) (string, error) {
	if sid == "" {
		return "", errors.New("session: id is required")
	}

	now := c.now().UTC()
	claims := Claims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the token and returns the session id.
func (c *Codec) Decode(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("session: unexpected signing method")
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims.SessionID, nil
	}

	return "", errors.New("session: invalid claims")
}
