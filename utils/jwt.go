package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaims struct {
	UserID string `json:"user_id"`
	Gender string `json:"gender"`
	jwt.RegisteredClaims
}

// Uint returns the numeric user id carried in the claims.
func (c *JWTClaims) Uint() (uint, error) {
	id, err := strconv.ParseUint(c.UserID, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken signs an HS256 token for the user.
func (t *TokenIssuer) GenerateToken(userID uint, gender string) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("JWT_SECRET is not set")
	}
	now := t.now()
	claims := JWTClaims{
		UserID: strconv.FormatUint(uint64(userID), 10),
		Gender: gender,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// VerifyToken parses tokenStr and checks signature and expiry.
func (t *TokenIssuer) VerifyToken(tokenStr string) (*JWTClaims, error) {
	if len(t.secret) == 0 {
		return nil, errors.New("JWT_SECRET is not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
