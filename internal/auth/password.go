package auth

import (
	"errors"
	"math/bits"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
	// MinPasswordLength is the minimum password length
	MinPasswordLength = 8
)

var (
	// ErrPasswordTooShort is returned when password is too short
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordTooWeak is returned when password doesn't meet requirements
	ErrPasswordTooWeak = errors.New("password must contain at least three of: uppercase, lowercase, number, symbol")
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Character class bits for password strength checks.
const (
	classUpper = 1 << iota
	classLower
	classNumber
	classSymbol
)

// ValidatePassword checks if a password meets requirements. At least 3 of
// the 4 character classes must be present.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	var classes uint
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			classes |= classUpper
		case unicode.IsLower(r):
			classes |= classLower
		case unicode.IsNumber(r):
			classes |= classNumber
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			classes |= classSymbol
		}
	}

	if bits.OnesCount(classes) < 3 {
		return ErrPasswordTooWeak
	}
	return nil
}
