package services

import (
	"regexp"
	"strings"
	"unicode"
)

// Client-side validation is advisory only; the server re-validates every
// request independently.

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	otpPattern   = regexp.MustCompile(`^\d{6}$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// ValidateEmail returns a field message for a malformed email, empty when ok.
func ValidateEmail(email string) string {
	if strings.TrimSpace(email) == "" {
		return "Email is required"
	}
	if !emailPattern.MatchString(email) {
		return "Please enter a valid email address"
	}
	return ""
}

// ValidatePassword enforces the minimum strength rules: at least 8
// characters with one uppercase, one lowercase and one digit.
func ValidatePassword(password string) string {
	if password == "" {
		return "Password is required"
	}
	if len(password) < 8 {
		return "Password must be at least 8 characters"
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return "Password must contain uppercase, lowercase and a number"
	}
	return ""
}

// ValidateOTP requires exactly six digits.
func ValidateOTP(code string) string {
	if strings.TrimSpace(code) == "" {
		return "OTP is required"
	}
	if !otpPattern.MatchString(code) {
		return "OTP must be 6 digits"
	}
	return ""
}

// ValidatePhone requires exactly ten digits after stripping separators.
func ValidatePhone(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return "Phone number is required"
	}
	if len(nonDigits.ReplaceAllString(phone, "")) != 10 {
		return "Phone number must be 10 digits"
	}
	return ""
}

// ValidateName requires 2-100 characters of letters and spaces.
func ValidateName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Name is required"
	}
	if len(trimmed) < 2 {
		return "Name must be at least 2 characters"
	}
	if len(trimmed) > 100 {
		return "Name must be at most 100 characters"
	}
	if !namePattern.MatchString(trimmed) {
		return "Name may only contain letters and spaces"
	}
	return ""
}

func addFieldError(fields map[string]string, field, msg string) {
	if msg != "" {
		fields[field] = msg
	}
}
