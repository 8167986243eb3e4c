package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/coursetrack/internal/apperr"
)

// BcryptCost is lowered by tests.
var BcryptCost = 12

const MinPasswordLen = 6

func HashPassword(pw string) (string, error) {
	if len(pw) < MinPasswordLen {
		return "", apperr.InvalidInput("password must be at least %d characters", MinPasswordLen)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
