package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	uuidRegex        = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	displayNameRegex = regexp.MustCompile(`^[\p{L}\p{N} _-]+$`)
)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

// NormalizeSessionCode trims and upper-cases a user-typed session code.
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidSessionCode reports whether code has the given length and only uses alphabet.
func IsValidSessionCode(code, alphabet string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}

// CleanDisplayName trims name and reports whether it is 1..maxLen characters
// of letters, digits, space, underscore or hyphen.
func CleanDisplayName(name string, maxLen int) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxLen {
		return name, false
	}
	return name, displayNameRegex.MatchString(name)
}

// CleanCategory trims category and reports whether it is 1..maxLen characters.
func CleanCategory(category string, maxLen int) (string, bool) {
	category = strings.TrimSpace(category)
	if category == "" || utf8.RuneCountInString(category) > maxLen {
		return category, false
	}
	return category, true
}
