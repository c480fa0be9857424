package types

import "time"

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address, used to log in.
	Email string `json:"email" db:"email"`

	// FirstName and LastName hold the user's real name.
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Role indicates the user's authorization level within the system.
	Role Role `json:"role" db:"role"`

	// Phone is an optional, unique contact number.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Department is an optional organizational unit label.
	Department string `json:"department,omitempty" db:"department"`

	// IsActive gates login. Deactivated accounts keep their rows but
	// cannot authenticate.
	IsActive bool `json:"is_active" db:"is_active"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	// It is set once and never updated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Profile is the optional 1:1 profile extension, present when one
	// has been created for the user.
	Profile *UserProfile `json:"profile,omitempty" db:"-"`
}

// UserProfile is the lazily created 1:1 extension of a User. All fields
// are optional; the row exists only after the first profile write and is
// removed together with its user.
type UserProfile struct {
	Bio         *string `json:"bio" db:"bio"`
	Avatar      *string `json:"avatar" db:"avatar"`
	Address     *string `json:"address" db:"address"`
	DateOfBirth *string `json:"date_of_birth" db:"date_of_birth"`
}
