// Package auth issues and verifies the HS256 access tokens handed to
// investigators after login.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer        = "poikeeper"
	subjectPrefix = "USER-"
)

// Claims carries the standard claims plus the numeric user id. The subject
// is "USER-{badge number}".
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
}

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID   int64
	BadgeNum string
}

func GenerateToken(id Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subjectPrefix + id.BadgeNum,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: id.UserID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tokenString, nil
}

// ParseToken verifies signature, algorithm, issuer and expiry.
// Expired tokens yield common.ErrTokenExpired, anything else common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, common.ErrTokenExpired
		}
		return Identity{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == 0 || !strings.HasPrefix(claims.Subject, subjectPrefix) {
		return Identity{}, common.ErrInvalidToken
	}

	return Identity{UserID: claims.UserID, BadgeNum: strings.TrimPrefix(claims.Subject, subjectPrefix)}, nil
}
