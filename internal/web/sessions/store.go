package sessions

import (
	"errors"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const CookieName = "hk-session"

type Store struct {
	store sessions.Store
}

func NewStore(store sessions.Store) *Store {
	return &Store{store: store}
}

// Get returns the session for the request. A cookie that fails to decode
// (tampering, rotated keys) yields a fresh session instead of an error,
// the client simply starts over logged out.
func (s *Store) Get(r *http.Request) (*Session, error) {
	base, err := s.store.Get(r, CookieName)
	if err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() && base != nil {
			return &Session{base: base}, nil
		}

		return nil, err
	}

	return &Session{base: base}, nil
}

func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *Session) error {
	err := s.store.Save(r, w, sess.base)
	if err != nil {
		return err
	}

	sess.needsSave = false
	return nil
}

// Delete destroys the server-side session record and expires the cookie.
func (s *Store) Delete(r *http.Request, w http.ResponseWriter, sess *Session) error {
	sess.base.Options.MaxAge = -1
	sess.base.Values = make(map[any]any)
	return s.store.Save(r, w, sess.base)
}
