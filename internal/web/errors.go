package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

// handleError translates errors to JSON error responses. Internal details
// never reach the client, they are logged instead.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"

	var (
		invalidInput errorz.InvalidInput
		mismatch     auth.CodeMismatchError
		rateLimited  errorz.RateLimited
	)

	switch {
	case errors.As(err, &invalidInput):
		status, msg = http.StatusBadRequest, invalidInput.Error()
	case errors.As(err, &mismatch):
		status, msg = http.StatusBadRequest, mismatch.Error()
	case errors.Is(err, auth.ErrCodeExpired):
		status, msg = http.StatusBadRequest, "code expired, request a new one"
	case errors.Is(err, krypto.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "invalid input"
	case errors.Is(err, errorz.ErrNoAuth):
		status, msg = http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, errorz.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, errorz.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, auth.ErrDuplicateUser), errors.Is(err, errorz.ErrDuplicate):
		// Conflicts are user-correctable, reported as 400 with a message
		// rather than 409.
		status, msg = http.StatusBadRequest, "an account with this email already exists"
	case errors.Is(err, auth.ErrTooManyCodeAttempts):
		status, msg = http.StatusTooManyRequests, "too many attempts, request a new code"
	case errors.As(err, &rateLimited):
		status = http.StatusTooManyRequests
		secs := int(rateLimited.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		msg = fmt.Sprintf("rate limited, retry in %d seconds", secs)
	case errors.Is(err, auth.ErrEmailDelivery):
		status, msg = http.StatusBadGateway, "failed to send email, try again later"
	}

	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("internal server error", "url", r.URL.String(), "error", err)
	}

	writeJSON(w, status, envelope{
		Success: false,
		Error:   msg,
	})
}
