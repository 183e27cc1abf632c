package models

import (
	"strings"

	"github.com/google/uuid"
)

// ID identifies every persisted entity. It is always the canonical UUID string form.
type ID string

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates raw input coming from requests.
func ParseID(raw string) (ID, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return ID(parsed.String()), true
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool { return id == "" }
