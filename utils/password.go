package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLen = 6

var ErrPasswordTooShort = errors.New("password must be at least 6 characters")

func HashPassword(raw string) (string, error) {
	if len(raw) < MinPasswordLen {
		return "", ErrPasswordTooShort
	}
	b, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, raw string) bool {
	if hash == "" || raw == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
