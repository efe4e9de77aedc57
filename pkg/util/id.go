package util

import "github.com/google/uuid"

// ValidateID reports whether s is a random (version 4) UUID. Caller
// supplied identifiers must be v4 so they can double as ledger entry ids
// without colliding with internally generated ones.
func ValidateID(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}
