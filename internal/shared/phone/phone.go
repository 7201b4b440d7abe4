// Package phone normalizes recipient phone numbers into chat identifiers.
package phone

import (
	"regexp"
	"strings"
)

// ChatSuffix is appended to a normalized number to form a chat identifier.
const ChatSuffix = "@c.us"

var nonDigits = regexp.MustCompile(`\D`)

// Normalize strips all non-digit characters and prefixes the default
// country code when the number does not already start with it.
func Normalize(number, countryCode string) string {
	cleaned := nonDigits.ReplaceAllString(number, "")
	if strings.HasPrefix(cleaned, countryCode) {
		return cleaned
	}
	return countryCode + cleaned
}

// ChatID converts a raw phone number into the chat identifier the
// messaging engine expects.
func ChatID(number, countryCode string) string {
	return Normalize(number, countryCode) + ChatSuffix
}
