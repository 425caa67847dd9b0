package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/habitkeep/habitkeep/internal/web/sessions"
)

// sessionMiddleware loads the session, enforces the idle timeout and
// injects the session in the request context.
//
// A session whose last activity is longer than the idle timeout ago is
// treated as logged out: its values are cleared before any handler sees
// them. Active sessions get their last activity refreshed.
func sessionMiddleware(srv *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := srv.deps.SessionStore.Get(r)
			if err != nil {
				srv.handleError(w, r, err)
				return
			}

			now := srv.now()

			if _, ok := sess.UserID(); ok {
				last, hasActivity := sess.LastActivity()
				if !hasActivity || now.Sub(last) > srv.cfg.IdleTimeout {
					sess.Reset()
				} else {
					sess.Touch(now)
				}
			}

			if sess.NeedsSave() {
				err = srv.deps.SessionStore.Save(r, w, sess)
				if err != nil {
					srv.handleError(w, r, err)
					return
				}
			}

			ctx := ctxWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type ctxKey string

const sessionCtxKey ctxKey = "_session"

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*sessions.Session)
	if !ok {
		return nil, fmt.Errorf("could not get session from context")
	}

	return sess, nil
}
