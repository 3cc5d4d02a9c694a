package service

import (
	"regexp"
	"strings"

	apperrors "github.com/devrev/bqsync/internal/errors"
)

var identifierPattern = regexp.MustCompile(`^[\p{L}\p{N}_\-]+$`)

// ValidateIdentifier rejects empty names and names that cannot be embedded in a quoted table path
func ValidateIdentifier(kind, value string) error {
	if value == "" {
		return apperrors.InvalidRequest("%s is required", kind)
	}
	if len(value) > 1024 || !identifierPattern.MatchString(value) {
		return apperrors.InvalidRequest("invalid %s %q", kind, value)
	}
	return nil
}

// ValidateReadOnlyQuery accepts only statements starting with SELECT or WITH
func ValidateReadOnlyQuery(sql string) error {
	q := strings.ToLower(strings.TrimSpace(sql))
	if q == "" {
		return apperrors.InvalidRequest("query is required")
	}
	if !strings.HasPrefix(q, "select") && !strings.HasPrefix(q, "with") {
		return apperrors.InvalidRequest("Only SELECT queries are allowed")
	}
	return nil
}
