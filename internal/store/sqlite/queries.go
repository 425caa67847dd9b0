package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/db"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)
type rowFunc func(query string, params ...any) *sql.Row

func insertUser(ef execFunc, u *auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO users (id, email_address, password_hash, is_verified, created_at, updated_at) VALUES (`)
	q.Params(u.ID, string(u.Email), u.PasswordHash.String(), u.Verified, u.CreatedAt, u.UpdatedAt)
	q.Unsafe(`)`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateUser(ef execFunc, u *auth.User) error {
	var q db.Query
	q.Unsafe(`UPDATE users SET `)

	q.Unsafe(`email_address = `)
	q.Param(string(u.Email))

	q.Unsafe(`, password_hash = `)
	q.Param(u.PasswordHash.String())

	q.Unsafe(`, is_verified = `)
	q.Param(u.Verified)

	q.Unsafe(`, created_at = `)
	q.Param(u.CreatedAt)

	q.Unsafe(`, updated_at = `)
	q.Param(u.UpdatedAt)

	q.Unsafe(` WHERE id = `)
	q.Param(u.ID)

	s, params := q.Get()
	return execExpectingRow(ef, s, params, "user")
}

func deleteUser(ef execFunc, id uuid.UUID) error {
	var q db.Query
	q.Unsafe(`DELETE FROM users WHERE id = `)
	q.Param(id)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func selectUsers(qf queryFunc, f *auth.UserFilter) ([]auth.User, error) {
	var q db.Query
	q.Unsafe(`SELECT id, email_address, password_hash, is_verified, created_at, updated_at FROM users WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(anySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Emails) > 0 {
		q.Unsafe(`AND email_address IN (`)
		q.Params(anySlice(f.Emails)...)
		q.Unsafe(`) `)
	}

	if f.Verified != nil {
		q.Unsafe(`AND is_verified = `)
		q.Param(*f.Verified)
	}

	q.Unsafe(` ORDER BY id ASC`)

	s, params := q.Get()
	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		var (
			u    auth.User
			addr string
		)
		err := rows.Scan(&u.ID, &addr, &u.PasswordHash, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		u.Email, err = email.ParseAddress(addr)
		if err != nil {
			return nil, err
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func upsertPendingRegistration(ef execFunc, p *auth.PendingRegistration) error {
	var q db.Query
	q.Unsafe(`INSERT INTO pending_registrations (email_address, password_hash, created_at, expires_at) VALUES (`)
	q.Params(string(p.Email), p.PasswordHash.String(), p.CreatedAt, p.ExpiresAt)
	q.Unsafe(`) ON CONFLICT (email_address) DO UPDATE SET password_hash = excluded.password_hash, created_at = excluded.created_at, expires_at = excluded.expires_at`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func selectPendingRegistration(rf rowFunc, addr email.Address) (*auth.PendingRegistration, error) {
	var q db.Query
	q.Unsafe(`SELECT email_address, password_hash, created_at, expires_at FROM pending_registrations WHERE email_address = `)
	q.Param(string(addr))

	s, params := q.Get()

	var (
		p   auth.PendingRegistration
		raw string
	)
	err := rf(s, params...).Scan(&raw, &p.PasswordHash, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	p.Email, err = email.ParseAddress(raw)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func deletePendingRegistration(ef execFunc, addr email.Address) error {
	var q db.Query
	q.Unsafe(`DELETE FROM pending_registrations WHERE email_address = `)
	q.Param(string(addr))

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func upsertVerificationCode(ef execFunc, c *auth.VerificationCode) error {
	var q db.Query
	q.Unsafe(`INSERT INTO verification_codes (email_address, purpose, code, attempts, created_at, expires_at) VALUES (`)
	q.Params(string(c.Email), string(c.Purpose), string(c.Code), c.Attempts, c.CreatedAt, c.ExpiresAt)
	q.Unsafe(`) ON CONFLICT (email_address, purpose) DO UPDATE SET code = excluded.code, attempts = excluded.attempts, created_at = excluded.created_at, expires_at = excluded.expires_at`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateVerificationCode(ef execFunc, c *auth.VerificationCode) error {
	var q db.Query
	q.Unsafe(`UPDATE verification_codes SET `)

	q.Unsafe(`code = `)
	q.Param(string(c.Code))

	q.Unsafe(`, attempts = `)
	q.Param(c.Attempts)

	q.Unsafe(`, created_at = `)
	q.Param(c.CreatedAt)

	q.Unsafe(`, expires_at = `)
	q.Param(c.ExpiresAt)

	q.Unsafe(` WHERE email_address = `)
	q.Param(string(c.Email))
	q.Unsafe(` AND purpose = `)
	q.Param(string(c.Purpose))

	s, params := q.Get()
	return execExpectingRow(ef, s, params, "verification code")
}

func selectVerificationCode(rf rowFunc, addr email.Address, purpose auth.CodePurpose) (*auth.VerificationCode, error) {
	var q db.Query
	q.Unsafe(`SELECT email_address, purpose, code, attempts, created_at, expires_at FROM verification_codes WHERE email_address = `)
	q.Param(string(addr))
	q.Unsafe(` AND purpose = `)
	q.Param(string(purpose))

	s, params := q.Get()
	return scanVerificationCode(rf(s, params...))
}

func selectLatestVerificationCode(rf rowFunc, addr email.Address) (*auth.VerificationCode, error) {
	var q db.Query
	q.Unsafe(`SELECT email_address, purpose, code, attempts, created_at, expires_at FROM verification_codes WHERE email_address = `)
	q.Param(string(addr))
	q.Unsafe(` ORDER BY created_at DESC LIMIT 1`)

	s, params := q.Get()
	return scanVerificationCode(rf(s, params...))
}

func scanVerificationCode(row *sql.Row) (*auth.VerificationCode, error) {
	var (
		c       auth.VerificationCode
		raw     string
		purpose string
		code    string
	)
	err := row.Scan(&raw, &purpose, &code, &c.Attempts, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	c.Email, err = email.ParseAddress(raw)
	if err != nil {
		return nil, err
	}

	c.Purpose = auth.CodePurpose(purpose)
	if !c.Purpose.Valid() {
		return nil, fmt.Errorf("unknown code purpose %q: %w", purpose, errorz.ErrConstraintViolated)
	}

	c.Code = auth.Code(code)

	return &c, nil
}

func deleteVerificationCode(ef execFunc, addr email.Address, purpose auth.CodePurpose) error {
	var q db.Query
	q.Unsafe(`DELETE FROM verification_codes WHERE email_address = `)
	q.Param(string(addr))
	q.Unsafe(` AND purpose = `)
	q.Param(string(purpose))

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func selectLoginAttempt(rf rowFunc, addr email.Address) (*auth.LoginAttempt, error) {
	var q db.Query
	q.Unsafe(`SELECT email_address, attempt_count, first_attempt, last_attempt, locked_until FROM login_attempts WHERE email_address = `)
	q.Param(string(addr))

	s, params := q.Get()

	var (
		a      auth.LoginAttempt
		raw    string
		locked sql.NullTime
	)
	err := rf(s, params...).Scan(&raw, &a.Count, &a.FirstAttempt, &a.LastAttempt, &locked)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	a.Email, err = email.ParseAddress(raw)
	if err != nil {
		return nil, err
	}

	if locked.Valid {
		a.LockedUntil = locked.Time
	}

	return &a, nil
}

func upsertLoginAttempt(ef execFunc, a *auth.LoginAttempt) error {
	var locked any
	if !a.LockedUntil.IsZero() {
		locked = a.LockedUntil
	}

	var q db.Query
	q.Unsafe(`INSERT INTO login_attempts (email_address, attempt_count, first_attempt, last_attempt, locked_until) VALUES (`)
	q.Params(string(a.Email), a.Count, a.FirstAttempt, a.LastAttempt, locked)
	q.Unsafe(`) ON CONFLICT (email_address) DO UPDATE SET attempt_count = excluded.attempt_count, first_attempt = excluded.first_attempt, last_attempt = excluded.last_attempt, locked_until = excluded.locked_until`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func deleteLoginAttempt(ef execFunc, addr email.Address) error {
	var q db.Query
	q.Unsafe(`DELETE FROM login_attempts WHERE email_address = `)
	q.Param(string(addr))

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func execExpectingRow(ef execFunc, s string, params []any, kind string) error {
	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("%s not found: %w", kind, errorz.ErrNotFound)
	}

	return nil
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
