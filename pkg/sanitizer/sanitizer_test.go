package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifyhub/pkg/sanitizer"
)

func TestRemoveNullBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean string untouched", "hello", "hello"},
		{"embedded null removed", "user\x00-1", "user-1"},
		{"only nulls", "\x00\x00", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizer.RemoveNullBytes(tt.input))
		})
	}
}

func TestSingleLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"newlines become spaces", "order #42\nshipped", "order #42 shipped"},
		{"crlf collapsed", "a\r\nb", "a b"},
		{"runs of whitespace collapsed", "a \t  b", "a b"},
		{"trimmed", "  a  ", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizer.SingleLine(tt.input))
		})
	}
}

func TestMaxLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", sanitizer.MaxLength("abc", 5))
	assert.Equal(t, "ab", sanitizer.MaxLength("abcde", 2))
	assert.Equal(t, "", sanitizer.MaxLength("abc", 0))
	// Truncation counts runes, not bytes.
	assert.Equal(t, "hél", sanitizer.MaxLength("héllo", 3))
}

func TestKeepDigits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "15551234567", sanitizer.KeepDigits("+1 (555) 123-4567"))
	assert.Equal(t, "", sanitizer.KeepDigits("no digits"))
}
