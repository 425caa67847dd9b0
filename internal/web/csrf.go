package web

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/krypto"
	"github.com/habitkeep/habitkeep/internal/web/sessions"
)

// CSRFTokenHeader carries the CSRF token on mutating requests.
const CSRFTokenHeader = "X-CSRF-Token"

// csrfMiddleware protects against cross-site request forgery. Every
// mutating request must echo the session's token, in the X-CSRF-Token
// header or a csrfToken body field. Pre-login requests are covered too,
// clients obtain their first token from the check endpoint.
//
// The token is stable for the lifetime of the session, is rotated on
// login and is compared in constant time.
func csrfMiddleware(srv *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessionFromCtx(r.Context())
			if err != nil {
				srv.handleError(w, r, err)
				return
			}

			want, ok := sess.CSRFToken()
			if !ok {
				srv.handleError(w, r, fmt.Errorf("session has no csrf token yet: %w", errorz.ErrForbidden))
				return
			}

			got, err := requestCSRFToken(r)
			if err != nil {
				srv.handleError(w, r, err)
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				srv.handleError(w, r, fmt.Errorf("csrf token mismatch: %w", errorz.ErrForbidden))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestCSRFToken extracts the client's token from the header or, for
// JSON bodies, the csrfToken field. The body is restored so handlers can
// still decode it.
func requestCSRFToken(r *http.Request) (string, error) {
	if token := r.Header.Get(CSRFTokenHeader); token != "" {
		return token, nil
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return "", nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var fields struct {
		CSRFToken string `json:"csrfToken"`
	}
	// An undecodable body simply has no token, the handler will produce
	// the decode error.
	_ = json.Unmarshal(body, &fields)

	return fields.CSRFToken, nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// issueCSRFToken generates and stores a fresh session token.
// Called when a session first needs a token and again on login, so a
// token leaked before authentication is worthless afterwards.
func issueCSRFToken(sess *sessions.Session) (string, error) {
	token, err := krypto.GenerateToken()
	if err != nil {
		return "", err
	}

	sess.SetCSRFToken(token.String())
	return token.String(), nil
}
