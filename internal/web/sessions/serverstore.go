package sessions

import (
	"encoding/base32"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/habitkeep/habitkeep/internal/errorz"
)

// StoredSession is a server-side session record. Values is the
// securecookie-encoded session value map.
type StoredSession struct {
	ID        string
	Values    string
	ExpiresAt time.Time
}

// Backend persists sessions server side, keyed by session id. Implemented
// by the store packages.
type Backend interface {
	// SaveSession creates or overwrites the record.
	SaveSession(sess StoredSession) error
	// GetSession returns errorz.ErrNotFound for unknown ids.
	GetSession(id string) (StoredSession, error)
	// DeleteSession is idempotent, deleting an absent record is not an
	// error.
	DeleteSession(id string) error
}

// ServerStore is a gorilla/sessions store that keeps all session state
// server side. The cookie carries only an encoded opaque session id, so
// destroying the record (logout, account deletion) invalidates every
// copy of the cookie immediately.
//
// Records carry an absolute expiry, refreshed on every save and enforced
// lazily on load.
type ServerStore struct {
	backend  Backend
	codecs   []securecookie.Codec
	options  *sessions.Options
	lifetime time.Duration

	// NowFunc is used to determine the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewServerStore(backend Backend, options *sessions.Options, lifetime time.Duration, keyPairs ...[]byte) *ServerStore {
	return &ServerStore{
		backend:  backend,
		codecs:   securecookie.CodecsFromPairs(keyPairs...),
		options:  options,
		lifetime: lifetime,
		NowFunc:  time.Now,
	}
}

// Get returns the session for the request, cached per request in the
// gorilla registry.
func (s *ServerStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session record the request's cookie points at, or
// returns a fresh session when there is no cookie, the record was
// destroyed, or the record expired.
func (s *ServerStore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.options
	sess.Options = &opts
	sess.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}

	if err := securecookie.DecodeMulti(name, c.Value, &sess.ID, s.codecs...); err != nil {
		return sess, err
	}

	stored, err := s.backend.GetSession(sess.ID)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			sess.ID = ""
			return sess, nil
		}
		return sess, err
	}

	if s.NowFunc().After(stored.ExpiresAt) {
		sess.ID = ""
		return sess, s.backend.DeleteSession(stored.ID)
	}

	if err := securecookie.DecodeMulti(name, stored.Values, &sess.Values, s.codecs...); err != nil {
		return sess, err
	}

	sess.IsNew = false
	return sess, nil
}

// Save persists the session record and hands the client a cookie with
// the encoded session id. A MaxAge < 0 destroys the record.
func (s *ServerStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.backend.DeleteSession(sess.ID); err != nil {
				return err
			}
			sess.ID = ""
		}

		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	if sess.ID == "" {
		sess.ID = newSessionID()
	}

	values, err := securecookie.EncodeMulti(sess.Name(), sess.Values, s.codecs...)
	if err != nil {
		return err
	}

	err = s.backend.SaveSession(StoredSession{
		ID:        sess.ID,
		Values:    values,
		ExpiresAt: s.NowFunc().Add(s.lifetime),
	})
	if err != nil {
		return err
	}

	encodedID, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.codecs...)
	if err != nil {
		return err
	}

	http.SetCookie(w, sessions.NewCookie(sess.Name(), encodedID, sess.Options))
	return nil
}

// newSessionID returns an unguessable random session id.
func newSessionID() string {
	raw := securecookie.GenerateRandomKey(32)
	return strings.TrimRight(base32.StdEncoding.EncodeToString(raw), "=")
}
