package utils

import (
	"fmt"
	"os"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type ExpirationTime struct {
	duration time.Duration
}

func NewExpirationTime(d time.Duration) ExpirationTime {
	return ExpirationTime{duration: d}
}

func (e ExpirationTime) Unix() int64 {
	return time.Now().Add(e.duration).Unix()
}

func (e ExpirationTime) Time() time.Time {
	return time.Now().Add(e.duration)
}

func (e ExpirationTime) Duration() time.Duration {
	return e.duration
}

var AccessTokenExpiration = NewExpirationTime(15 * time.Minute)

func jwtSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "development_secret"
	}
	return []byte(secret)
}

// ValidateToken checks the signature and expiry of a dashboard JWT. Tokens
// are issued by the auth subsystem; this service only verifies them.
func ValidateToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret(), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		// Check if the token is expired
		if exp, ok := claims["expiresAt"].(float64); ok {
			if time.Now().Unix() > int64(exp) {
				return nil, fmt.Errorf("token is expired")
			}
		}
		return token, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// CreateAccessToken mirrors the claims the auth subsystem issues. Kept here
// for local development and tests.
func CreateAccessToken(userID int64, name string, email string) (string, error) {
	claims := &jwt.MapClaims{
		"userId":    userID,
		"name":      name,
		"email":     email,
		"expiresAt": AccessTokenExpiration.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}
