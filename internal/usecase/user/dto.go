package user

import (
	"time"

	domain "user-crud-service/internal/domain/user"
)

// CreateUserRequest represents the request payload for creating a new user.
type CreateUserRequest struct {
	Name  string `validate:"required"`
	Email string `validate:"required"`
}

// UpdateUserRequest represents the request payload for updating an existing user.
// A nil field is left untouched; a non-nil field replaces the stored value.
type UpdateUserRequest struct {
	ID    string
	Name  *string
	Email *string
}

// HasChanges reports whether the request carries at least one known field.
func (r UpdateUserRequest) HasChanges() bool {
	return r.Name != nil || r.Email != nil
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID string
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID string
}

// UserResponse represents a user DTO (Data Transfer Object) for API responses.
type UserResponse struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListUsersResponse represents the response payload for user listing.
type ListUsersResponse struct {
	Users []UserResponse
}

// userRecord is the validated shape of a user after a partial update is merged.
type userRecord struct {
	Name  string `validate:"required"`
	Email string `validate:"required"`
}

func toResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
