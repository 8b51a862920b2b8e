package handler

import (
	"net/url"
	"sort"
	"strings"
)

// ValidationError represents field validation errors. The map key is the
// field name, the values are human-readable messages for that field.
type ValidationError url.Values

// Error implements the error interface.
func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, field := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(strings.Join(e[field], ", "))
	}
	return b.String()
}

// NewValidationError creates an empty validation error.
func NewValidationError() ValidationError {
	return make(ValidationError)
}

// Add appends a message for a field.
func (e ValidationError) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Has reports whether the field has any messages.
func (e ValidationError) Has(field string) bool {
	return len(e[field]) > 0
}

// IsEmpty reports whether no field has messages.
func (e ValidationError) IsEmpty() bool {
	return len(e) == 0
}
