package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

var (
	// ErrDuplicateUser indicates an active account already exists for the email.
	ErrDuplicateUser = errors.New("duplicate user")
	// ErrEmailDelivery indicates the verification email could not be delivered.
	// The code was stored before delivery was attempted, a resend can be
	// requested after the cooldown.
	ErrEmailDelivery = errors.New("failed to deliver email")
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data interface{}) error
}

// CodeEmail is the data rendered into verification code emails.
type CodeEmail struct {
	Code       Code
	TTLMinutes int
}

// ErrFunc is a function that handles errors from worker goroutines.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// CodeTTL is the duration a verification code is valid.
	CodeTTL time.Duration
	// PendingTTL is the duration a pending registration is valid.
	PendingTTL time.Duration
	// ResendCooldown is the minimum time between code emails to one address.
	ResendCooldown time.Duration
	// MaxLoginAttempts is the number of failed logins before lockout.
	MaxLoginAttempts int
	// LoginLockout is the duration of a login lockout.
	LoginLockout time.Duration
}

// DefaultConfig returns the standard production configuration.
func DefaultConfig() ServiceConfig {
	return ServiceConfig{
		WorkerTimeout:    10 * time.Second,
		CodeTTL:          15 * time.Minute,
		PendingTTL:       30 * time.Minute,
		ResendCooldown:   60 * time.Second,
		MaxLoginAttempts: 5,
		LoginLockout:     15 * time.Minute,
	}
}

// Service provides the main rules for the credential and verification
// lifecycle: registration with email verification, rate limited logins,
// password resets and account management.
type Service struct {
	store      Store
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// RegisterUser starts a registration: it stores a pending registration and
// a verification code, then emails the code. An existing pending
// registration for the same email is overwritten.
//
// The pending registration and code are committed before delivery is
// attempted. If delivery fails ErrEmailDelivery is returned, the stored
// code stays valid and the user can request a resend after the cooldown.
func (s *Service) RegisterUser(ctx context.Context, c Credentials) error {
	pwdHash, err := c.Password.Hash()
	if err != nil {
		return err
	}

	now := s.NowFunc()

	var code Code
	err = s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{
			Emails:   []email.Address{c.Email},
			Verified: ptr(true),
		})
		if txErr != nil {
			return txErr
		}

		if len(users) > 0 {
			return ErrDuplicateUser
		}

		txErr = tx.UpsertPendingRegistration(&PendingRegistration{
			Email:        c.Email,
			PasswordHash: pwdHash,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.cfg.PendingTTL),
		})
		if txErr != nil {
			return txErr
		}

		code, txErr = s.issueCode(tx, c.Email, CodePurposeRegistration, now)
		return txErr
	})
	if err != nil {
		return err
	}

	return s.sendCode(ctx, "verification-code", c.Email, code)
}

// VerifyRegistration consumes a registration code and, on success, turns
// the pending registration into a verified user account.
func (s *Service) VerifyRegistration(ctx context.Context, addr email.Address, code Code) (User, error) {
	var user User
	var vErr error

	err := s.inTx(ctx, func(tx Tx) error {
		now := s.NowFunc()

		cErr, txErr := s.consumeCode(tx, addr, code, CodePurposeRegistration, now)
		if txErr != nil {
			return txErr
		}
		if cErr != nil {
			// Attempt counters and expiry cleanup must still be committed.
			vErr = cErr
			return nil
		}

		pending, txErr := tx.FindPendingRegistration(addr)
		if txErr != nil {
			if errors.Is(txErr, errorz.ErrNotFound) {
				vErr = fmt.Errorf("no pending registration: %w", errorz.ErrNotFound)
				return nil
			}
			return txErr
		}

		if now.After(pending.ExpiresAt) {
			vErr = fmt.Errorf("pending registration expired: %w", errorz.ErrNotFound)
			return tx.DeletePendingRegistration(addr)
		}

		user = User{
			ID:           uuid.New(),
			Email:        addr,
			PasswordHash: pending.PasswordHash,
			Verified:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if txErr := tx.CreateUser(&user); txErr != nil {
			return txErr
		}

		return tx.DeletePendingRegistration(addr)
	})
	if err != nil {
		return User{}, err
	}
	if vErr != nil {
		return User{}, vErr
	}

	return user, nil
}

// CanResend reports whether a new code may be emailed to the address and,
// if not, how long the caller should wait. The cooldown covers the most
// recent code for the address regardless of purpose.
func (s *Service) CanResend(ctx context.Context, addr email.Address) (bool, time.Duration, error) {
	allowed := true
	var wait time.Duration

	err := s.inTx(ctx, func(tx Tx) error {
		latest, txErr := tx.FindLatestVerificationCode(addr)
		if txErr != nil {
			if errors.Is(txErr, errorz.ErrNotFound) {
				return nil
			}
			return txErr
		}

		elapsed := s.NowFunc().Sub(latest.CreatedAt)
		if elapsed < s.cfg.ResendCooldown {
			allowed = false
			wait = s.cfg.ResendCooldown - elapsed
		}

		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return allowed, wait, nil
}

// ResendCode re-issues the registration code for a pending registration.
//
// It returns errorz.RateLimited while the resend cooldown is active. Apart
// from that the outcome is not reported: the actual work happens in a
// worker goroutine so the response does not reveal which email
// addresses have a registration in flight.
func (s *Service) ResendCode(ctx context.Context, addr email.Address) error {
	allowed, wait, err := s.CanResend(ctx, addr)
	if err != nil {
		return err
	}

	if !allowed {
		return errorz.RateLimited{RetryAfter: wait}
	}

	s.inWorker(func(wCtx context.Context) error {
		now := s.NowFunc()

		var code Code
		err := s.inTx(wCtx, func(tx Tx) error {
			pending, txErr := tx.FindPendingRegistration(addr)
			if txErr != nil {
				return txErr
			}

			if now.After(pending.ExpiresAt) {
				return fmt.Errorf("pending registration expired: %w", errorz.ErrNotFound)
			}

			code, txErr = s.issueCode(tx, addr, CodePurposeRegistration, now)
			return txErr
		})
		if err != nil {
			return err
		}

		return s.sendCode(wCtx, "verification-code", addr, code)
	})

	return nil
}

// Authenticate checks the provided credentials. It returns the user on
// success, errorz.ErrNoAuth for bad credentials and errorz.RateLimited
// while the address is locked out.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (User, error) {
	var user User
	var authErr error

	err := s.inTx(ctx, func(tx Tx) error {
		now := s.NowFunc()

		remaining, txErr := s.checkAllowed(tx, c.Email, now)
		if txErr != nil {
			return txErr
		}
		if remaining > 0 {
			authErr = errorz.RateLimited{RetryAfter: remaining}
			return nil
		}

		users, txErr := tx.FindUsers(&UserFilter{
			Emails:   []email.Address{c.Email},
			Verified: ptr(true),
		})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			// Even if no user is found we compare to a hash to prevent timing
			// differences that could result in user enumeration attacks.
			_ = c.Password.Match(s.comparisonHash)
			authErr = errorz.ErrNoAuth
			return s.recordFailure(tx, c.Email, now)
		}

		if !c.Password.Match(users[0].PasswordHash) {
			authErr = errorz.ErrNoAuth
			return s.recordFailure(tx, c.Email, now)
		}

		user = users[0]
		return s.recordSuccess(tx, c.Email)
	})
	if err != nil {
		return User{}, err
	}
	if authErr != nil {
		return User{}, authErr
	}

	return user, nil
}

// RequestPasswordReset requests a password reset code for the address.
// The main work is done in a worker goroutine and no output is returned,
// so the response cannot be used to enumerate accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, addr email.Address) {
	s.inWorker(func(wCtx context.Context) error {
		now := s.NowFunc()

		var code Code
		err := s.inTx(wCtx, func(tx Tx) error {
			users, txErr := tx.FindUsers(&UserFilter{
				Emails:   []email.Address{addr},
				Verified: ptr(true),
			})
			if txErr != nil {
				return txErr
			}

			if len(users) != 1 {
				return errorz.ErrNotFound
			}

			code, txErr = s.issueCode(tx, addr, CodePurposePasswordReset, now)
			return txErr
		})
		if err != nil {
			return err
		}

		return s.sendCode(wCtx, "password-reset-code", addr, code)
	})
}

// VerifyPasswordReset consumes a password reset code and returns a reset
// token. The token authorizes a single ResetPassword call and is handed to
// the client directly, never emailed.
func (s *Service) VerifyPasswordReset(ctx context.Context, addr email.Address, code Code) (Code, error) {
	var token Code
	var vErr error

	err := s.inTx(ctx, func(tx Tx) error {
		now := s.NowFunc()

		cErr, txErr := s.consumeCode(tx, addr, code, CodePurposePasswordReset, now)
		if txErr != nil {
			return txErr
		}
		if cErr != nil {
			vErr = cErr
			return nil
		}

		token, txErr = s.issueCode(tx, addr, CodePurposeResetToken, now)
		return txErr
	})
	if err != nil {
		return "", err
	}
	if vErr != nil {
		return "", vErr
	}

	return token, nil
}

// ResetPassword consumes a reset token and updates the user's password.
// A successful reset also clears any login lockout for the address.
func (s *Service) ResetPassword(ctx context.Context, addr email.Address, token Code, newPassword Password) error {
	pwdHash, err := newPassword.Hash()
	if err != nil {
		return err
	}

	var vErr error
	err = s.inTx(ctx, func(tx Tx) error {
		now := s.NowFunc()

		cErr, txErr := s.consumeCode(tx, addr, token, CodePurposeResetToken, now)
		if txErr != nil {
			return txErr
		}
		if cErr != nil {
			vErr = cErr
			return nil
		}

		users, txErr := tx.FindUsers(&UserFilter{
			Emails:   []email.Address{addr},
			Verified: ptr(true),
		})
		if txErr != nil {
			return txErr
		}

		if len(users) != 1 {
			return errorz.ErrNotFound
		}

		users[0].PasswordHash = pwdHash
		users[0].UpdatedAt = now

		if txErr := tx.UpdateUser(&users[0]); txErr != nil {
			return txErr
		}

		return tx.DeleteLoginAttempt(addr)
	})
	if err != nil {
		return err
	}

	return vErr
}

// ChangePassword updates the password of the user identified by userID.
// It fails with errorz.ErrNoAuth if currentPassword does not match.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword Password) error {
	pwdHash, err := newPassword.Hash()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx Tx) error {
		user, txErr := s.findUserByID(tx, userID)
		if txErr != nil {
			return txErr
		}

		if !currentPassword.Match(user.PasswordHash) {
			return fmt.Errorf("current password does not match: %w", errorz.ErrNoAuth)
		}

		user.PasswordHash = pwdHash
		user.UpdatedAt = s.NowFunc()

		return tx.UpdateUser(&user)
	})
}

// DeleteAccount removes the user and all data owned by it.
// It fails with errorz.ErrNoAuth if password does not match.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID, password Password) error {
	return s.inTx(ctx, func(tx Tx) error {
		user, txErr := s.findUserByID(tx, userID)
		if txErr != nil {
			return txErr
		}

		if !password.Match(user.PasswordHash) {
			return fmt.Errorf("password does not match: %w", errorz.ErrNoAuth)
		}

		if txErr := tx.DeleteUser(user.ID); txErr != nil {
			return txErr
		}

		if txErr := tx.DeleteLoginAttempt(user.Email); txErr != nil {
			return txErr
		}

		for _, purpose := range []CodePurpose{CodePurposeRegistration, CodePurposePasswordReset, CodePurposeResetToken} {
			if txErr := tx.DeleteVerificationCode(user.Email, purpose); txErr != nil {
				return txErr
			}
		}

		return nil
	})
}

// FindUser looks up a user by ID, used by the web layer to resolve sessions.
func (s *Service) FindUser(ctx context.Context, userID uuid.UUID) (User, error) {
	var user User
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		user, txErr = s.findUserByID(tx, userID)
		return txErr
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

// issueCode generates a fresh code for (addr, purpose), overwriting any
// previous code and resetting its attempt counter.
func (s *Service) issueCode(tx Tx, addr email.Address, purpose CodePurpose, now time.Time) (Code, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	err = tx.UpsertVerificationCode(&VerificationCode{
		Email:     addr,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
		Attempts:  0,
	})
	if err != nil {
		return "", err
	}

	return code, nil
}

// consumeCode verifies the code for (addr, purpose) and deletes it on
// success. The first return value reports verification failures that must
// still be committed (attempt counters, expiry cleanup), the second is a
// store failure that aborts the transaction.
func (s *Service) consumeCode(tx Tx, addr email.Address, code Code, purpose CodePurpose, now time.Time) (error, error) {
	stored, err := tx.FindVerificationCode(addr, purpose)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			return errorz.ErrNotFound, nil
		}
		return nil, err
	}

	if now.After(stored.ExpiresAt) {
		return ErrCodeExpired, tx.DeleteVerificationCode(addr, purpose)
	}

	if stored.Attempts >= MaxCodeAttempts {
		return ErrTooManyCodeAttempts, nil
	}

	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(code)) != 1 {
		stored.Attempts++
		return CodeMismatchError{
			AttemptsRemaining: MaxCodeAttempts - stored.Attempts,
		}, tx.UpdateVerificationCode(stored)
	}

	return nil, tx.DeleteVerificationCode(addr, purpose)
}

func (s *Service) sendCode(ctx context.Context, template string, addr email.Address, code Code) error {
	err := s.emailer.Send(ctx, template, addr, CodeEmail{
		Code:       code,
		TTLMinutes: int(s.cfg.CodeTTL.Minutes()),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}

	return nil
}

func (s *Service) findUserByID(tx Tx, userID uuid.UUID) (User, error) {
	users, err := tx.FindUsers(&UserFilter{
		IDs:      []uuid.UUID{userID},
		Verified: ptr(true),
	})
	if err != nil {
		return User{}, err
	}

	if len(users) != 1 {
		return User{}, errorz.ErrNotFound
	}

	return users[0], nil
}

// inWorker runs f in a goroutine with a bounded timeout, reporting errors
// to the error handler.
func (s *Service) inWorker(f func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		if err := f(wCtx); err != nil {
			s.errHandler(err)
		}
	}()
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}

func ptr[T any](v T) *T {
	return &v
}
