package service

import (
	"strings"
	"unicode"

	"github.com/trustelem/zxcvbn"
)

const (
	minPasswordLength = 8
	// minPasswordScore is the lowest accepted zxcvbn score (0-4)
	minPasswordScore = 2
)

// checkPasswordStrength returns the reasons a password is too weak. attrs
// are the user's own details (username, email, names); the password may
// not resemble them.
func checkPasswordStrength(password string, attrs ...string) []string {
	var problems []string

	if len([]rune(password)) < minPasswordLength {
		problems = append(problems, "This password is too short. It must contain at least 8 characters.")
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		problems = append(problems, "This password is entirely numeric.")
	}

	lower := strings.ToLower(password)
	for _, attr := range attrs {
		if similarTo(lower, strings.ToLower(attr)) {
			problems = append(problems, "The password is too similar to the "+attrName(attr, attrs)+".")
			break
		}
	}

	inputs := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if attr != "" {
			inputs = append(inputs, attr)
		}
	}
	if password != "" && zxcvbn.PasswordStrength(password, inputs).Score < minPasswordScore {
		problems = append(problems, "This password is too weak. Add another word or two; uncommon words are better.")
	}

	return problems
}

func similarTo(password, attr string) bool {
	if len(attr) < 3 {
		return false
	}
	// compare against the local part of an email too
	if at := strings.IndexByte(attr, '@'); at > 0 {
		if similarTo(password, attr[:at]) {
			return true
		}
	}
	return strings.Contains(password, attr) || strings.Contains(attr, password)
}

func attrName(attr string, attrs []string) string {
	if strings.Contains(attr, "@") {
		return "email"
	}
	if len(attrs) > 0 && attr == attrs[0] {
		return "username"
	}
	return "personal information"
}
