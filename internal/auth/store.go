package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/email"
)

// UserFilter is used to filter users.
// Returned users must match all the provided fields.
// If a field is empty or nil, it's ignored.
type UserFilter struct {
	IDs      []uuid.UUID
	Emails   []email.Address
	Verified *bool
}

// Store provides access to the credential store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the methods, the
// transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
//
// Find methods for single records return errorz.ErrNotFound when no
// record exists. Delete methods are idempotent, deleting an absent record
// is not an error. Code consumption relies on FindVerificationCode and
// DeleteVerificationCode happening inside one Tx, backends must make
// transactions serializable per (email, purpose) so two concurrent
// verify calls cannot both consume the same code.
type Tx interface {
	Commit() error
	Rollback() error

	CreateUser(u *User) error
	UpdateUser(u *User) error
	// DeleteUser removes the user and all habit data owned by it.
	DeleteUser(id uuid.UUID) error
	FindUsers(filter *UserFilter) ([]User, error)

	UpsertPendingRegistration(p *PendingRegistration) error
	FindPendingRegistration(addr email.Address) (*PendingRegistration, error)
	DeletePendingRegistration(addr email.Address) error

	UpsertVerificationCode(c *VerificationCode) error
	UpdateVerificationCode(c *VerificationCode) error
	FindVerificationCode(addr email.Address, purpose CodePurpose) (*VerificationCode, error)
	// FindLatestVerificationCode returns the most recently created code
	// for the address regardless of purpose. Used for resend throttling.
	FindLatestVerificationCode(addr email.Address) (*VerificationCode, error)
	DeleteVerificationCode(addr email.Address, purpose CodePurpose) error

	FindLoginAttempt(addr email.Address) (*LoginAttempt, error)
	UpsertLoginAttempt(a *LoginAttempt) error
	DeleteLoginAttempt(addr email.Address) error
}
