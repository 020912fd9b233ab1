//nolint:revive // exported
package stoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pairbench/server/pkg/idwrap"
)

const TokenHeaderKey = "Authorization"

type TokenType string

const (
	AccessToken  TokenType = "access_token"
	RefreshToken TokenType = "refresh_token"
)

// Claims is the shared shape between the external auth service and this
// server. Subject carries the user ULID.
type Claims struct {
	jwt.RegisteredClaims
	Email     string    `json:"email"`
	TokenType TokenType `json:"token_type"`
}

func NewJWT(userID idwrap.IDWrap, email string, tokenType TokenType, duration time.Duration, secret []byte) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pairbench",
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{"pairbench"},
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})

	return t.SignedString(secret)
}

func ValidateJWT(tokenString string, tokenType TokenType, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("cannot cast claims")
	}

	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("invalid token type")
	}

	return claims, nil
}
