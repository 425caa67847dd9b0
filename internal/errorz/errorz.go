package errorz

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConstraintViolated = errors.New("constraint violated")
	ErrTxBadState         = errors.New("transaction is in a known bad state")

	// ErrNoAuth indicates missing or failed authentication.
	ErrNoAuth = errors.New("not authenticated")
	// ErrForbidden indicates the request was authenticated but not allowed.
	// Most notably used for CSRF token failures.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicate indicates a uniqueness conflict, such as registering an
	// email address that already has an active account.
	ErrDuplicate = errors.New("duplicate")
)

// RateLimited indicates an operation was rejected because the caller
// exceeded a rate limit. RetryAfter estimates how long the caller should
// wait before trying again.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// MapDBErr maps database errors to appropriate errorz errors.
// If err is nil, MapDBErr returns nil.
func MapDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	sErr := sqlite3.Error{}
	if errors.As(err, &sErr) {
		if sErr.Code == sqlite3.ErrConstraint {
			return ErrConstraintViolated
		}
	}

	return err
}
