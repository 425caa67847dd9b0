package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

// CodePurpose scopes a verification code to one workflow.
type CodePurpose string

const (
	// CodePurposeRegistration confirms ownership of the email address
	// during registration.
	CodePurposeRegistration CodePurpose = "registration"
	// CodePurposePasswordReset is the emailed first step of a password reset.
	CodePurposePasswordReset CodePurpose = "password_reset"
	// CodePurposeResetToken authorizes the actual password change after
	// the password_reset code was verified. Never emailed, handed to the
	// client directly.
	CodePurposeResetToken CodePurpose = "reset_token"
)

// Valid reports whether p is a known purpose.
func (p CodePurpose) Valid() bool {
	switch p {
	case CodePurposeRegistration, CodePurposePasswordReset, CodePurposeResetToken:
		return true
	}
	return false
}

const (
	codeDigits = 6

	// MaxCodeAttempts caps guesses before a code must be reissued.
	MaxCodeAttempts = 5
)

var (
	// ErrCodeExpired indicates the code exists but is past its expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrTooManyCodeAttempts indicates the attempt cap was reached and the
	// code must be reissued, not retried.
	ErrTooManyCodeAttempts = errors.New("too many verification attempts")
)

// CodeMismatchError indicates the provided code did not match.
type CodeMismatchError struct {
	AttemptsRemaining int
}

func (e CodeMismatchError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}

// VerificationCode is a short-lived one-time code. There is at most one
// active code per (email, purpose), issuing a new one overwrites the
// previous. A code is consumed (deleted) immediately upon successful
// verification and is never reusable.
type VerificationCode struct {
	Email     email.Address
	Code      Code
	Purpose   CodePurpose
	CreatedAt time.Time
	ExpiresAt time.Time
	Attempts  int
}

// Code is a 6 digit decimal verification code, leading zeros included.
//
// Codes are confidential while active. The only place a plaintext code
// should appear is in the email to the user (or, for reset tokens, the
// response to the client that just verified a reset code).
type Code string

// GenerateCode creates a new random code using crypto/rand.
func GenerateCode() (Code, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return Code(fmt.Sprintf("%0*d", codeDigits, n)), nil
}

// ParseCode validates the shape of a client-provided code.
func ParseCode(raw string) (Code, error) {
	if len(raw) != codeDigits {
		return "", fmt.Errorf("code must be %d digits: %w", codeDigits, krypto.ErrInvalidInput)
	}

	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("code must be numeric: %w", krypto.ErrInvalidInput)
		}
	}

	return Code(raw), nil
}

func (c *Code) UnmarshalText(text []byte) error {
	code, err := ParseCode(string(text))
	if err != nil {
		return err
	}

	*c = code

	return nil
}

// LogValue implements the slog.Valuer interface.
func (c Code) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}
