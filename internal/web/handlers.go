package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/web/sessions"
)

// The payload types mirror the JSON bodies of the API. Field types with
// an UnmarshalText method validate their format during decoding, the
// Validate methods only need to catch missing fields.

type credentialsPayload struct {
	Email    email.Address `json:"email"`
	Password auth.Password `json:"password"`
}

func (p credentialsPayload) Validate() error {
	var invalid errorz.InvalidInput
	if p.Email == "" {
		invalid = append(invalid, errorz.Keyed{Key: "email", Err: errors.New("is required")})
	}
	if p.Password.IsZero() {
		invalid = append(invalid, errorz.Keyed{Key: "password", Err: errors.New("is required")})
	}
	if len(invalid) > 0 {
		return invalid
	}
	return nil
}

func (p credentialsPayload) credentials() auth.Credentials {
	return auth.Credentials{
		Email:    p.Email,
		Password: p.Password,
	}
}

type emailPayload struct {
	Email email.Address `json:"email"`
}

func (p emailPayload) Validate() error {
	if p.Email == "" {
		return errorz.InvalidInput{errorz.Keyed{Key: "email", Err: errors.New("is required")}}
	}
	return nil
}

type codePayload struct {
	Email email.Address `json:"email"`
	Code  auth.Code     `json:"code"`
}

func (p codePayload) Validate() error {
	var invalid errorz.InvalidInput
	if p.Email == "" {
		invalid = append(invalid, errorz.Keyed{Key: "email", Err: errors.New("is required")})
	}
	if p.Code == "" {
		invalid = append(invalid, errorz.Keyed{Key: "code", Err: errors.New("is required")})
	}
	if len(invalid) > 0 {
		return invalid
	}
	return nil
}

type resetPasswordPayload struct {
	Email       email.Address `json:"email"`
	ResetToken  auth.Code     `json:"resetToken"`
	NewPassword auth.Password `json:"newPassword"`
}

func (p resetPasswordPayload) Validate() error {
	var invalid errorz.InvalidInput
	if p.Email == "" {
		invalid = append(invalid, errorz.Keyed{Key: "email", Err: errors.New("is required")})
	}
	if p.ResetToken == "" {
		invalid = append(invalid, errorz.Keyed{Key: "resetToken", Err: errors.New("is required")})
	}
	if p.NewPassword.IsZero() {
		invalid = append(invalid, errorz.Keyed{Key: "newPassword", Err: errors.New("is required")})
	}
	if len(invalid) > 0 {
		return invalid
	}
	return nil
}

type changePasswordPayload struct {
	CurrentPassword auth.Password `json:"currentPassword"`
	NewPassword     auth.Password `json:"newPassword"`
}

func (p changePasswordPayload) Validate() error {
	var invalid errorz.InvalidInput
	if p.CurrentPassword.IsZero() {
		invalid = append(invalid, errorz.Keyed{Key: "currentPassword", Err: errors.New("is required")})
	}
	if p.NewPassword.IsZero() {
		invalid = append(invalid, errorz.Keyed{Key: "newPassword", Err: errors.New("is required")})
	}
	if len(invalid) > 0 {
		return invalid
	}
	return nil
}

type passwordPayload struct {
	Password auth.Password `json:"password"`
}

func (p passwordPayload) Validate() error {
	if p.Password.IsZero() {
		return errorz.InvalidInput{errorz.Keyed{Key: "password", Err: errors.New("is required")}}
	}
	return nil
}

// sessionData is the payload returned by endpoints that establish or
// report a session.
type sessionData struct {
	LoggedIn  bool   `json:"loggedIn"`
	Email     string `json:"email,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`
}

type resetTokenData struct {
	ResetToken auth.Code `json:"resetToken"`
}

// startSession establishes a logged-in session for the user and rotates
// the CSRF token so a token leaked before authentication is worthless
// afterwards.
func startSession(srv *Server, w http.ResponseWriter, r *http.Request, sess *sessions.Session, u auth.User) (sessionData, error) {
	sess.Reset()
	sess.SetUserID(u.ID)
	sess.SetEmail(string(u.Email))
	sess.Touch(srv.now())

	token, err := issueCSRFToken(sess)
	if err != nil {
		return sessionData{}, err
	}

	if err := srv.deps.SessionStore.Save(r, w, sess); err != nil {
		return sessionData{}, err
	}

	return sessionData{
		LoggedIn:  true,
		Email:     string(u.Email),
		CSRFToken: token,
	}, nil
}

// userIDFromCtx returns the authenticated user id for the request.
// Handlers behind the loggedIn guard can rely on it being present.
func userIDFromCtx(ctx context.Context) (uuid.UUID, error) {
	sess, err := sessionFromCtx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	userID, ok := sess.UserID()
	if !ok {
		return uuid.Nil, errorz.ErrNoAuth
	}

	return userID, nil
}
