package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoomClaims are the claims carried by a widget room token.
type RoomClaims struct {
	Room string `json:"room"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies the signed tokens participants use to
// join a video room.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer signing with the given secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("session: token secret is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue mints a room token for one participant.
func (ti *TokenIssuer) Issue(room, userID, role string) (string, error) {
	if room == "" || userID == "" {
		return "", fmt.Errorf("session: room and user ID are required")
	}
	now := time.Now()
	claims := RoomClaims{
		Room: room,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign room token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a room token.
func (ti *TokenIssuer) Verify(tokenString string) (*RoomClaims, error) {
	var claims RoomClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: verify room token: %w", err)
	}
	return &claims, nil
}
