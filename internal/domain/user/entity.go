package user

import "time"

// User represents a user entity in the system.
type User struct {
	ID        string    // ID is the storage-assigned identifier (canonical UUID)
	Name      string    // Name is the full name of the user
	Email     string    // Email is the unique email address of the user
	CreatedAt time.Time // CreatedAt is set once on insert
	UpdatedAt time.Time // UpdatedAt is refreshed on every write
}
