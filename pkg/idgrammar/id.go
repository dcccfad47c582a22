// Package idgrammar enforces the identifier grammar shared by every id
// that participates in a filesystem path: node, session, server, and
// graph ids.
package idgrammar

import (
	"regexp"

	nerverrors "github.com/nerved/nerved/pkg/errors"
)

var idPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateID enforces the identifier grammar used for every id that
// participates in a filesystem path (node, session, server, graph ids).
func ValidateID(id string) error {
	if len(id) < 1 || len(id) > 32 {
		return &nerverrors.ValidationError{
			Field:   "id",
			Message: "must be 1-32 characters",
		}
	}
	if !idPattern.MatchString(id) {
		return &nerverrors.ValidationError{
			Field:      "id",
			Message:    "must match ^[a-z0-9]([a-z0-9-]*[a-z0-9])?$",
			Suggestion: "use lowercase letters, digits, and internal hyphens only",
		}
	}
	return nil
}
