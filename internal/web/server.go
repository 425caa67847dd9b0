package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
	"github.com/habitkeep/habitkeep/internal/web/sessions"
)

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	AuthService  *auth.Service
	HabitService *habit.Service
	SessionStore *sessions.Store
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	// IdleTimeout logs sessions out after this much inactivity.
	IdleTimeout time.Duration
	// NowFunc is used to determine the current time, mainly useful for tests.
	NowFunc func() time.Time
}

type Server struct {
	deps    *ServerDeps
	cfg     ServerConfig
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}
	s.decoder.IgnoreUnknownKeys(true)

	// Most endpoints below are created using the map functions. These
	// functions return handlers that automatically map between HTTP
	// requests, target functions and HTTP responses. The request mapping
	// and response writing is customizable.

	// Registration endpoints.
	{
		const route = "POST /api/auth/register"
		h := mapRequest(s, func(ctx context.Context, in credentialsPayload) error {
			return deps.AuthService.RegisterUser(ctx, in.credentials())
		})

		s.public(route, h)
	}
	{
		const route = "POST /api/auth/verify"
		h := mapBoth(s, func(ctx context.Context, in codePayload) (auth.User, error) {
			return deps.AuthService.VerifyRegistration(ctx, in.Email, in.Code)
		})
		h.response(func(r result[codePayload, auth.User]) error {
			sess, err := sessionFromCtx(r.r.Context())
			if err != nil {
				return err
			}

			data, err := startSession(r.s, r.w, r.r, sess, r.out)
			if err != nil {
				return err
			}

			return writeJSON(r.w, http.StatusOK, envelope{Success: true, Data: data})
		})

		s.public(route, h)
	}
	{
		const route = "POST /api/auth/resend"
		h := mapRequest(s, func(ctx context.Context, in emailPayload) error {
			return deps.AuthService.ResendCode(ctx, in.Email)
		})

		s.public(route, h)
	}

	// Login and logout endpoints.
	{
		const route = "POST /api/auth/login"
		h := mapBoth(s, func(ctx context.Context, in credentialsPayload) (auth.User, error) {
			return deps.AuthService.Authenticate(ctx, in.credentials())
		})
		h.response(func(r result[credentialsPayload, auth.User]) error {
			sess, err := sessionFromCtx(r.r.Context())
			if err != nil {
				return err
			}

			data, err := startSession(r.s, r.w, r.r, sess, r.out)
			if err != nil {
				return err
			}

			return writeJSON(r.w, http.StatusOK, envelope{Success: true, Data: data})
		})

		s.public(route, h)
	}
	{
		const route = "POST /api/auth/logout"
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			if err := s.deps.SessionStore.Delete(r, w, sess); err != nil {
				s.handleError(w, r, err)
				return
			}

			writeJSON(w, http.StatusOK, envelope{Success: true})
		})

		s.loggedIn(route, h)
	}
	{
		const route = "GET /api/auth/check"
		s.public(route, http.HandlerFunc(s.checkSession))
	}

	// Password reset endpoints.
	{
		const route = "POST /api/auth/forgot"
		h := mapRequest(s, func(ctx context.Context, in emailPayload) error {
			// Always reports success, whether an account exists is not
			// revealed here.
			deps.AuthService.RequestPasswordReset(ctx, in.Email)
			return nil
		})

		s.public(route, h)
	}
	{
		const route = "POST /api/auth/verify-reset"
		h := mapBoth(s, func(ctx context.Context, in codePayload) (resetTokenData, error) {
			token, err := deps.AuthService.VerifyPasswordReset(ctx, in.Email, in.Code)
			if err != nil {
				return resetTokenData{}, err
			}

			return resetTokenData{ResetToken: token}, nil
		})

		s.public(route, h)
	}
	{
		const route = "POST /api/auth/reset"
		h := mapRequest(s, func(ctx context.Context, in resetPasswordPayload) error {
			return deps.AuthService.ResetPassword(ctx, in.Email, in.ResetToken, in.NewPassword)
		})

		s.public(route, h)
	}

	// Account management endpoints.
	{
		const route = "POST /api/account/password"
		h := mapRequest(s, func(ctx context.Context, in changePasswordPayload) error {
			userID, err := userIDFromCtx(ctx)
			if err != nil {
				return err
			}

			return deps.AuthService.ChangePassword(ctx, userID, in.CurrentPassword, in.NewPassword)
		})

		s.loggedIn(route, h)
	}
	{
		const route = "POST /api/account/delete"
		h := mapRequest(s, func(ctx context.Context, in passwordPayload) error {
			userID, err := userIDFromCtx(ctx)
			if err != nil {
				return err
			}

			return deps.AuthService.DeleteAccount(ctx, userID, in.Password)
		})
		h.response(func(r result[passwordPayload, struct{}]) error {
			sess, err := sessionFromCtx(r.r.Context())
			if err != nil {
				return err
			}

			if err := r.s.deps.SessionStore.Delete(r.r, r.w, sess); err != nil {
				return err
			}

			return writeJSON(r.w, http.StatusOK, envelope{Success: true})
		})

		s.loggedIn(route, h)
	}

	// Habit data endpoints.
	{
		const route = "GET /api/data"
		h := mapResponse(s, func(ctx context.Context) (habit.Data, error) {
			userID, err := userIDFromCtx(ctx)
			if err != nil {
				return habit.Data{}, err
			}

			return deps.HabitService.Load(ctx, userID)
		})

		s.loggedIn(route, h)
	}
	{
		const route = "POST /api/data"
		h := mapRequest(s, func(ctx context.Context, in habit.Data) error {
			userID, err := userIDFromCtx(ctx)
			if err != nil {
				return err
			}

			return deps.HabitService.Save(ctx, userID, in)
		})

		s.loggedIn(route, h)
	}
	{
		const route = "GET /api/data/export"
		s.loggedIn(route, http.HandlerFunc(s.exportData))
	}
	{
		const route = "POST /api/data/import"
		h := mapRequest(s, func(ctx context.Context, in habit.Data) error {
			userID, err := userIDFromCtx(ctx)
			if err != nil {
				return err
			}

			return deps.HabitService.Import(ctx, userID, in)
		})

		s.loggedIn(route, h)
	}

	// Wrap the mux with global middlewares.
	middlewares := []func(http.Handler) http.Handler{
		sessionMiddleware(s),
		csrfMiddleware(s),
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) now() time.Time {
	return s.cfg.NowFunc()
}

// public registers a handler accessible with or without a session.
func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// loggedIn registers a handler that requires an authenticated session.
func (s *Server) loggedIn(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if _, ok := sess.UserID(); !ok {
			s.handleError(w, r, errorz.ErrNoAuth)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

// checkSession reports the session state. It also hands out the CSRF
// token, making it the endpoint clients hit before their first mutating
// request.
func (s *Server) checkSession(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	token, ok := sess.CSRFToken()
	if !ok {
		token, err = issueCSRFToken(sess)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if err := s.deps.SessionStore.Save(r, w, sess); err != nil {
			s.handleError(w, r, err)
			return
		}
	}

	data := sessionData{CSRFToken: token}
	if _, ok := sess.UserID(); ok {
		data.LoggedIn = true
		data.Email, _ = sess.Email()
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// exportData streams the user's data as a JSON or CSV download.
func (s *Server) exportData(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromCtx(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="habits.json"`)
		err = s.deps.HabitService.ExportJSON(r.Context(), userID, w)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="habits.csv"`)
		err = s.deps.HabitService.ExportCSV(r.Context(), userID, w)
	default:
		s.handleError(w, r, errorz.InvalidInput{
			errorz.Keyed{Key: "format", Err: fmt.Errorf("must be json or csv")},
		})
		return
	}

	if err != nil {
		// The download may be partially written, logging is all that is
		// left to do.
		s.deps.Logger.Error("failed to export data", "userID", userID, "error", err)
	}
}
