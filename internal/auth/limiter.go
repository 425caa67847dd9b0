package auth

import (
	"errors"
	"time"

	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
)

// The login rate limiter is keyed by the claimed email address, not by
// client IP. This protects a known account against credential stuffing
// but not against distributed password spraying (see DESIGN.md).
//
// Lockout state is checked lazily on access, there is no background sweep.

// checkAllowed returns the remaining lockout duration for the address.
// Zero means the address is allowed to attempt a login. Stale records
// (past the lockout window) are removed as a side effect.
func (s *Service) checkAllowed(tx Tx, addr email.Address, now time.Time) (time.Duration, error) {
	attempt, err := tx.FindLoginAttempt(addr)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	if !attempt.LockedUntil.IsZero() {
		if now.Before(attempt.LockedUntil) {
			return attempt.LockedUntil.Sub(now), nil
		}

		// Lock expired, treat the record as absent.
		return 0, tx.DeleteLoginAttempt(addr)
	}

	// Forget failure counts that have gone stale without ever locking.
	if now.Sub(attempt.LastAttempt) > s.cfg.LoginLockout {
		return 0, tx.DeleteLoginAttempt(addr)
	}

	return 0, nil
}

// recordFailure bumps the failure count for the address and sets the
// lockout once the count reaches the maximum.
func (s *Service) recordFailure(tx Tx, addr email.Address, now time.Time) error {
	attempt, err := tx.FindLoginAttempt(addr)
	if err != nil {
		if !errors.Is(err, errorz.ErrNotFound) {
			return err
		}
		attempt = &LoginAttempt{
			Email:        addr,
			FirstAttempt: now,
		}
	}

	attempt.Count++
	attempt.LastAttempt = now

	if attempt.Count >= s.cfg.MaxLoginAttempts && attempt.LockedUntil.IsZero() {
		attempt.LockedUntil = now.Add(s.cfg.LoginLockout)
	}

	return tx.UpsertLoginAttempt(attempt)
}

// recordSuccess clears the failure record for the address entirely.
func (s *Service) recordSuccess(tx Tx, addr email.Address) error {
	return tx.DeleteLoginAttempt(addr)
}
