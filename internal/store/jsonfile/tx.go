package jsonfile

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
)

// CreateUser creates a user.
func (t *Tx) CreateUser(u *auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	if _, ok := t.work.users[u.ID]; ok {
		return fmt.Errorf("user id already exists: %w", errorz.ErrConstraintViolated)
	}

	for _, other := range t.work.users {
		if other.Email == u.Email {
			return fmt.Errorf("email address already exists: %w", errorz.ErrConstraintViolated)
		}
	}

	t.work.users[u.ID] = *u
	return nil
}

// UpdateUser updates a user.
// It returns errorz.ErrNotFound if no user is found.
func (t *Tx) UpdateUser(u *auth.User) error {
	if _, ok := t.work.users[u.ID]; !ok {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	for id, other := range t.work.users {
		if id != u.ID && other.Email == u.Email {
			return fmt.Errorf("email address already exists: %w", errorz.ErrConstraintViolated)
		}
	}

	t.work.users[u.ID] = *u
	return nil
}

// DeleteUser removes the user and all habit data owned by it.
func (t *Tx) DeleteUser(id uuid.UUID) error {
	delete(t.work.users, id)
	delete(t.work.habits, id)
	t.work.deletedHabits[id] = true
	return nil
}

// FindUsers queries for users based on the provided filter.
// Results are ordered by id for deterministic output.
func (t *Tx) FindUsers(filter *auth.UserFilter) ([]auth.User, error) {
	out := make([]auth.User, 0)
	for _, u := range t.work.users {
		if matchUser(filter, u) {
			out = append(out, u)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})

	return out, nil
}

func matchUser(f *auth.UserFilter, u auth.User) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, u.ID) {
		return false
	}

	if len(f.Emails) > 0 && !contains(f.Emails, u.Email) {
		return false
	}

	if f.Verified != nil && u.Verified != *f.Verified {
		return false
	}

	return true
}

func (t *Tx) UpsertPendingRegistration(p *auth.PendingRegistration) error {
	t.work.pending[string(p.Email)] = *p
	return nil
}

func (t *Tx) FindPendingRegistration(addr email.Address) (*auth.PendingRegistration, error) {
	p, ok := t.work.pending[string(addr)]
	if !ok {
		return nil, fmt.Errorf("pending registration not found: %w", errorz.ErrNotFound)
	}
	return &p, nil
}

func (t *Tx) DeletePendingRegistration(addr email.Address) error {
	delete(t.work.pending, string(addr))
	return nil
}

func (t *Tx) UpsertVerificationCode(c *auth.VerificationCode) error {
	t.work.codes[codeKey{email: string(c.Email), purpose: c.Purpose}] = *c
	return nil
}

// UpdateVerificationCode updates an existing code in place.
// It returns errorz.ErrNotFound if no code is found.
func (t *Tx) UpdateVerificationCode(c *auth.VerificationCode) error {
	key := codeKey{email: string(c.Email), purpose: c.Purpose}
	if _, ok := t.work.codes[key]; !ok {
		return fmt.Errorf("verification code not found: %w", errorz.ErrNotFound)
	}

	t.work.codes[key] = *c
	return nil
}

func (t *Tx) FindVerificationCode(addr email.Address, purpose auth.CodePurpose) (*auth.VerificationCode, error) {
	c, ok := t.work.codes[codeKey{email: string(addr), purpose: purpose}]
	if !ok {
		return nil, fmt.Errorf("verification code not found: %w", errorz.ErrNotFound)
	}
	return &c, nil
}

func (t *Tx) FindLatestVerificationCode(addr email.Address) (*auth.VerificationCode, error) {
	var latest *auth.VerificationCode
	for key, c := range t.work.codes {
		if key.email != string(addr) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			c := c
			latest = &c
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("verification code not found: %w", errorz.ErrNotFound)
	}

	return latest, nil
}

func (t *Tx) DeleteVerificationCode(addr email.Address, purpose auth.CodePurpose) error {
	delete(t.work.codes, codeKey{email: string(addr), purpose: purpose})
	return nil
}

func (t *Tx) FindLoginAttempt(addr email.Address) (*auth.LoginAttempt, error) {
	a, ok := t.work.attempts[string(addr)]
	if !ok {
		return nil, fmt.Errorf("login attempt not found: %w", errorz.ErrNotFound)
	}
	return &a, nil
}

func (t *Tx) UpsertLoginAttempt(a *auth.LoginAttempt) error {
	t.work.attempts[string(a.Email)] = *a
	return nil
}

func (t *Tx) DeleteLoginAttempt(addr email.Address) error {
	delete(t.work.attempts, string(addr))
	return nil
}

func contains[T comparable](s []T, v T) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
