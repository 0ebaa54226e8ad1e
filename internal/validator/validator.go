package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidEmail        = errors.New("invalid email")
	ErrInvalidUsername     = errors.New("invalid username")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrInvalidReferralCode = errors.New("invalid referral code")
)

var (
	emailRegex        = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	referralCodeRegex = regexp.MustCompile(`^[A-Z0-9]{8}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateReferralCode(code string) error {
	if !referralCodeRegex.MatchString(code) {
		return ErrInvalidReferralCode
	}
	return nil
}
