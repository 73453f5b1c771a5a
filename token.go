package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var errInvalidToken = errors.New("invalid token")

// Claims are embedded in both access and refresh tokens.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies the two token kinds. Access and refresh
// tokens are signed with distinct secrets so one cannot stand in for the
// other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (t *TokenIssuer) sign(userID, email string, secret []byte, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *TokenIssuer) IssueAccessToken(userID, email string) (string, error) {
	return t.sign(userID, email, t.accessSecret, t.accessTTL)
}

func (t *TokenIssuer) IssueRefreshToken(userID, email string) (string, error) {
	return t.sign(userID, email, t.refreshSecret, t.refreshTTL)
}

func (t *TokenIssuer) verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken checks signature and expiry against the access secret.
func (t *TokenIssuer) VerifyAccessToken(tokenString string) (*Claims, error) {
	return t.verify(tokenString, t.accessSecret)
}

// VerifyRefreshToken checks signature and expiry against the refresh secret.
// Bad signature and expired token both come back as an error; callers do not
// distinguish the two.
func (t *TokenIssuer) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return t.verify(tokenString, t.refreshSecret)
}

// RefreshTTL exposes the refresh lifetime for the cookie Max-Age.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}
