package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String length limits
const (
	MaxTenantIDLength = 128
	MaxMessageSize    = 16 * 1024 // 16KB - single message body limit
	MaxRecipients     = 1000
)

// TenantIDPattern allows alphanumeric, hyphens, underscores
var TenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateTenantID validates a tenant/client identifier
func ValidateTenantID(id string) error {
	if err := ValidateString(id, "clientId", 1, MaxTenantIDLength, true); err != nil {
		return err
	}

	if !TenantIDPattern.MatchString(id) {
		return fmt.Errorf("clientId contains invalid characters (only alphanumeric, hyphens, and underscores allowed)")
	}

	return nil
}

// ValidateMessageBody validates an outbound message body
func ValidateMessageBody(body string) error {
	return ValidateString(body, "message", 1, MaxMessageSize, true)
}
