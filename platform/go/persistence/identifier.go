package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// normalizeIdentifier trims the input and enforces a lowercase snake_case
// identifier that is safe to embed in SQL (table, schema and role names).
func normalizeIdentifier(kind, input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New(kind + " is required")
	}

	if !identifierPattern.MatchString(trimmed) {
		return "", fmt.Errorf("invalid %s %q: must match ^[a-z][a-z0-9_]*$", kind, trimmed)
	}

	return trimmed, nil
}

// ValidateIdentifier reports whether input is usable as a schema, table or
// role name. Callers taking names from flags or env should check them before
// constructing a TenantDB.
func ValidateIdentifier(kind, input string) error {
	_, err := normalizeIdentifier(kind, input)
	return err
}
