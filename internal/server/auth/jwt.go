// Package auth issues and validates the HS256 access tokens used by the
// HTTP API.
package auth

import (
	"errors"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims extends the registered JWT claims with the actor id and role.
// The role rides in the token so route gates do not need a DB round trip.
type Claims struct {
	jwt.RegisteredClaims
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
}

// GenerateToken signs an access token for the actor with the given validity.
func GenerateToken(actorID, role string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ActorID: actorID,
		Role:    role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetActorFromToken validates tokenString and returns the actor id and role
// embedded in it. Expired tokens map to common.ErrTokenExpired, everything
// else that fails validation maps to common.ErrInvalidToken.
func GetActorFromToken(tokenString string, secretKey []byte) (string, string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", common.ErrTokenExpired
		}
		return "", "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", "", common.ErrInvalidToken
	}

	return claims.ActorID, claims.Role, nil
}
