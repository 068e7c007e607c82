package user

import (
	"github.com/google/uuid"

	apperrors "user-crud-service/pkg/errors"
)

// NewID returns a fresh identifier for a user about to be inserted.
func NewID() string {
	return uuid.NewString()
}

// ParseID validates raw against the store's key format and returns its canonical form.
// A value that is not a UUID yields a *errors.MalformedIDError.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.NewMalformedIDError(raw, err)
	}
	return id.String(), nil
}
