// Package uuid provides UUID v4 generation and temporary-id utilities.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// tempPrefix marks identifiers issued locally for optimistic creates.
// They are replaced by the server-issued canonical id on reconciliation.
const tempPrefix = "local-"

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewTemporary generates a temporary identifier for an optimistic create.
func NewTemporary() string {
	return tempPrefix + uuid.New().String()
}

// IsTemporary reports whether an identifier was issued locally.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// IsValid checks if a string is a valid UUID.
func IsValid(s string) bool {
	_, err := uuid.Parse(strings.TrimPrefix(s, tempPrefix))
	return err == nil
}

// Validate returns an error if the string is not a valid UUID.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
