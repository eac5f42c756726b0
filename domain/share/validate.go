package share

import (
	"strings"
	"unicode/utf8"
)

// Validation limits for user-supplied fields.
const (
	MaxContentLength = 5000
	MaxTitleLength   = 200
	MaxWelcomeLength = 1000
)

// ValidateContent validates a user-originated message body.
// Whitespace-only bodies count as empty.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if len(content) > MaxContentLength || !utf8.ValidString(content) {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateWelcome validates an optional room welcome notice.
func ValidateWelcome(welcome string) error {
	if welcome == "" {
		return nil
	}
	if len(welcome) > MaxWelcomeLength || !utf8.ValidString(welcome) {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateTitle validates a room title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleInvalid
	}
	if len(title) > MaxTitleLength || !utf8.ValidString(title) {
		return ErrTitleInvalid
	}
	return nil
}
