package sqlite

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
)

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateUser creates a user in the database.
func (t *Tx) CreateUser(u *auth.User) error {
	return insertUser(t.tx.Exec, u)
}

// UpdateUser updates a user in the database.
// It returns errorz.ErrNotFound if no user is found.
func (t *Tx) UpdateUser(u *auth.User) error {
	return updateUser(t.tx.Exec, u)
}

// DeleteUser removes the user. Habit data owned by the user cascades.
func (t *Tx) DeleteUser(id uuid.UUID) error {
	return deleteUser(t.tx.Exec, id)
}

// FindUsers queries for users based on the provided filter.
// It returns an empty slice if no users are found.
func (t *Tx) FindUsers(filter *auth.UserFilter) ([]auth.User, error) {
	return selectUsers(t.tx.Query, filter)
}

func (t *Tx) UpsertPendingRegistration(p *auth.PendingRegistration) error {
	return upsertPendingRegistration(t.tx.Exec, p)
}

func (t *Tx) FindPendingRegistration(addr email.Address) (*auth.PendingRegistration, error) {
	return selectPendingRegistration(t.tx.QueryRow, addr)
}

func (t *Tx) DeletePendingRegistration(addr email.Address) error {
	return deletePendingRegistration(t.tx.Exec, addr)
}

func (t *Tx) UpsertVerificationCode(c *auth.VerificationCode) error {
	return upsertVerificationCode(t.tx.Exec, c)
}

// UpdateVerificationCode updates an existing code in place.
// It returns errorz.ErrNotFound if no code is found.
func (t *Tx) UpdateVerificationCode(c *auth.VerificationCode) error {
	return updateVerificationCode(t.tx.Exec, c)
}

func (t *Tx) FindVerificationCode(addr email.Address, purpose auth.CodePurpose) (*auth.VerificationCode, error) {
	return selectVerificationCode(t.tx.QueryRow, addr, purpose)
}

func (t *Tx) FindLatestVerificationCode(addr email.Address) (*auth.VerificationCode, error) {
	return selectLatestVerificationCode(t.tx.QueryRow, addr)
}

func (t *Tx) DeleteVerificationCode(addr email.Address, purpose auth.CodePurpose) error {
	return deleteVerificationCode(t.tx.Exec, addr, purpose)
}

func (t *Tx) FindLoginAttempt(addr email.Address) (*auth.LoginAttempt, error) {
	return selectLoginAttempt(t.tx.QueryRow, addr)
}

func (t *Tx) UpsertLoginAttempt(a *auth.LoginAttempt) error {
	return upsertLoginAttempt(t.tx.Exec, a)
}

func (t *Tx) DeleteLoginAttempt(addr email.Address) error {
	return deleteLoginAttempt(t.tx.Exec, addr)
}
