package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// emailPart excludes @ and whitespace. RE2's \s is ASCII only, so Unicode
// separators and the BOM are listed explicitly.
const emailPart = `[^@\s\v\p{Z}\x{FEFF}]+`

var (
	emailPattern = regexp.MustCompile(`^` + emailPart + `@` + emailPart + `\.` + emailPart + `$`)
	phonePattern = regexp.MustCompile(`^[\d\s\-\+\(\)]+$`)
	nonDigit     = regexp.MustCompile(`\D`)
)

// Each validator returns the first applicable error message, or "" when the
// value is acceptable.

func required(value, message string) string {
	if strings.TrimSpace(value) == "" {
		return message
	}
	return ""
}

func minLength(value string, n int, message string) string {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < n {
		return message
	}
	return ""
}

func firstOf(messages ...string) string {
	for _, m := range messages {
		if m != "" {
			return m
		}
	}
	return ""
}

func BusinessName(value string) string {
	if msg := required(value, "Business name is required"); msg != "" {
		return msg
	}
	return minLength(value, 2, "Business name must be at least 2 characters")
}

func Email(value string) string {
	if msg := required(value, "Email is required"); msg != "" {
		return msg
	}
	if !emailPattern.MatchString(value) {
		return "Please enter a valid email address"
	}
	return ""
}

func Country(value string) string {
	if value == "" {
		return "Please select a country"
	}
	return ""
}

func ContactName(value string) string {
	return firstOf(
		required(value, "Full name is required"),
		minLength(value, 2, "Name must be at least 2 characters"),
	)
}

// PhoneNumber accepts digits, spaces and +-() but needs at least ten digits.
func PhoneNumber(value string) string {
	if msg := required(value, "Phone number is required"); msg != "" {
		return msg
	}
	if !phonePattern.MatchString(value) {
		return "Please enter a valid phone number"
	}
	if len(nonDigit.ReplaceAllString(value, "")) < 10 {
		return "Phone number must be at least 10 digits"
	}
	return ""
}

func JobTitle(value string) string {
	return firstOf(
		required(value, "Job title is required"),
		minLength(value, 2, "Job title must be at least 2 characters"),
	)
}

func BusinessType(value string) string {
	if value == "" {
		return "Please select a business type"
	}
	return ""
}

func RegistrationNumber(value string) string {
	return firstOf(
		required(value, "Registration number is required"),
		minLength(value, 3, "Registration number must be at least 3 characters"),
	)
}

func MonthlyVolume(value string) string {
	if value == "" {
		return "Please select expected monthly volume"
	}
	return ""
}

func Terms(checked bool) string {
	if !checked {
		return "You must accept the terms and conditions"
	}
	return ""
}

// Password is length-checked on the raw value, not the trimmed one.
func Password(value string) string {
	if msg := required(value, "Password is required"); msg != "" {
		return msg
	}
	if utf8.RuneCountInString(value) < 6 {
		return "Password must be at least 6 characters"
	}
	return ""
}
