package domain

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minEnrollmentKeyLength = 4
	maxEnrollmentKeyLength = 72 // bcrypt input limit
)

// HashEnrollmentKey validates and hashes a plaintext enrollment key.
func HashEnrollmentKey(key string) (string, error) {
	if key == "" {
		return "", ErrEnrollmentKeyRequired
	}
	if utf8.RuneCountInString(key) < minEnrollmentKeyLength || len(key) > maxEnrollmentKeyLength {
		return "", ErrInvalidEnrollmentKeyFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MatchEnrollmentKey compares supplied against the stored hash. The
// comparison is exact and case-sensitive. bcrypt only reads the first 72
// bytes, so longer input never matches.
func (o *Organization) MatchEnrollmentKey(supplied string) (bool, error) {
	if !o.HasEnrollmentKey() {
		return true, nil
	}
	if len(supplied) > maxEnrollmentKeyLength {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(*o.EnrollmentKeyHash), []byte(supplied))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
