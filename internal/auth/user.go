package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

// User contains the data for a verified user account.
type User struct {
	ID           uuid.UUID
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials are the values a user provides to register or log in.
type Credentials struct {
	Email    email.Address
	Password Password
}

// PendingRegistration is an unconfirmed account awaiting code verification.
// It only exists between the register and verify steps. There is at most
// one per email address, a new registration overwrites the previous one.
type PendingRegistration struct {
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// LoginAttempt tracks failed logins for an email address.
// A zero LockedUntil means the address is not locked out.
type LoginAttempt struct {
	Email        email.Address
	Count        int
	FirstAttempt time.Time
	LastAttempt  time.Time
	LockedUntil  time.Time
}
