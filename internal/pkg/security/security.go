// Package security provides input validation and sanitization for values that
// reach logs, storage keys, and URLs.
package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxQueryIDLength is the maximum query ID length in runes.
const MaxQueryIDLength = 256

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQueryID validates a query ID used as a history key or path segment.
// Requirements: required, at most MaxQueryIDLength runes, valid UTF-8, no
// control characters.
func ValidateQueryID(id string) error {
	if id == "" {
		return &ValidationError{
			Field:      "query_id",
			Constraint: "required",
		}
	}

	if !utf8.ValidString(id) {
		return &ValidationError{
			Field:      "query_id",
			Constraint: "must be valid UTF-8",
		}
	}

	if length := utf8.RuneCountInString(id); length > MaxQueryIDLength {
		return &ValidationError{
			Field:      "query_id",
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryIDLength),
		}
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return &ValidationError{
				Field:      "query_id",
				Constraint: "must not contain control characters",
			}
		}
	}

	return nil
}

// SanitizeForLog sanitizes a string for safe logging.
// It prevents log injection by:
// - Replacing newlines with escaped versions
// - Replacing carriage returns
// - Removing other control characters
// - Truncating to a maximum length
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, 200)
}

// SanitizeForLogWithLength sanitizes a string for logging with a custom max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString("\\n")
			count += 2
		case '\r':
			b.WriteString("\\r")
			count += 2
		case '\t':
			b.WriteString("\\t")
			count += 2
		default:
			// Remove other control characters, keep printable
			if !unicode.IsControl(r) || r == ' ' {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}
