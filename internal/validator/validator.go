package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidCPF       = errors.New("invalid cpf")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrInvalidName      = errors.New("invalid full name")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

const (
	minPasswordLength = 8
	maxNameLength     = 120
)

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	cpfRegex   = regexp.MustCompile(`^[0-9]{11}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateCPF checks the stored format: exactly eleven digits, no punctuation.
func ValidateCPF(cpf string) error {
	if !cpfRegex.MatchString(cpf) {
		return ErrInvalidCPF
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

func ValidatePasswordConfirmation(password, confirmation string) error {
	if password != confirmation {
		return ErrPasswordMismatch
	}
	return nil
}

func ValidateFullName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
