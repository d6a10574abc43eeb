// Package auth verifies tokens issued by the external identity provider.
// This service never issues tokens itself; it only checks the signature and
// extracts the opaque subject id used as the owner identifier.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AppClaims struct {
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// OwnerID returns the verified owner identifier carried by the token.
func (c *AppClaims) OwnerID() string {
	return c.Subject
}

// GenerateJWT mints a token shaped like the ones the identity provider
// issues. Production tokens come from the external provider; this exists for
// local development and the integration tests.
func GenerateJWT(ownerID, displayName, secret string) (string, error) {
	expirationTime := time.Now().Add(1 * time.Hour)

	claims := &AppClaims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "identity-provider",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func VerifyJWT(tokenString, secret string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
