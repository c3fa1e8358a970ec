package security

import (
	"strings"
	"testing"
)

func TestValidateQueryID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{"simple", "q1", ""},
		{"with separators", "suite/2026-10/q-17", ""},
		{"unicode", "שאילתה-3", ""},
		{"max length", strings.Repeat("q", MaxQueryIDLength), ""},
		{"empty", "", "required"},
		{"too long", strings.Repeat("q", MaxQueryIDLength+1), "maximum length"},
		{"invalid utf8", "q\xff", "UTF-8"},
		{"newline", "q1\nERROR", "control characters"},
		{"null byte", "q\x00", "control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQueryID(tt.id)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateQueryID(%q) error = %v, want nil", tt.id, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateQueryID(%q) expected error", tt.id)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateQueryID(%q) error = %v, should contain %q", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "query_id", Value: 300, Constraint: "maximum length is 256 characters"}
	want := "validation failed for query_id: maximum length is 256 characters (got: 300)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"simple", "hello world", "hello world"},
		{"newline", "line1\nline2", "line1\\nline2"},
		{"carriage return", "line1\rline2", "line1\\rline2"},
		{"tab", "col1\tcol2", "col1\\tcol2"},
		{"mixed", "a\nb\rc\td", "a\\nb\\rc\\td"},
		{"control chars", "hello\x00\x01\x02world", "helloworld"},
		{"long string", strings.Repeat("a", 300), strings.Repeat("a", 200) + "..."},
		{"unicode", "hello 世界", "hello 世界"},
		{"log injection", "user\nERROR: fake error", "user\\nERROR: fake error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeForLog(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeForLogWithLength(t *testing.T) {
	if got := SanitizeForLogWithLength("abcdef", 3); got != "abc..." {
		t.Errorf("SanitizeForLogWithLength() = %q, want %q", got, "abc...")
	}
}
