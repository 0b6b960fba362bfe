package users

import (
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when a user doesn't exist in the index
var ErrUserNotFound = errors.New("user not found")

// InvalidDIDError represents a DID that fails basic validation
type InvalidDIDError struct {
	DID    string
	Reason string
}

func (e InvalidDIDError) Error() string {
	return fmt.Sprintf("invalid DID %q: %s", e.DID, e.Reason)
}

// IsNotFound checks if an error indicates a missing user
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
