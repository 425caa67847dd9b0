// Package sessions wraps gorilla/sessions with typed accessors for the
// values this app stores in a session.
//
// Values are kept as primitive types (strings, unix seconds) so the
// securecookie gob encoding never needs type registration.
package sessions

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	userIDKey       = "userID"
	emailKey        = "email"
	csrfTokenKey    = "csrfToken"
	lastActivityKey = "lastActivity"
)

type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

func (s *Session) UserID() (uuid.UUID, bool) {
	raw, ok := s.base.Values[userIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}

	return userID, true
}

func (s *Session) SetUserID(userID uuid.UUID) {
	s.needsSave = true
	s.base.Values[userIDKey] = userID.String()
}

func (s *Session) Email() (string, bool) {
	addr, ok := s.base.Values[emailKey].(string)
	return addr, ok
}

func (s *Session) SetEmail(addr string) {
	s.needsSave = true
	s.base.Values[emailKey] = addr
}

func (s *Session) CSRFToken() (string, bool) {
	token, ok := s.base.Values[csrfTokenKey].(string)
	return token, ok
}

func (s *Session) SetCSRFToken(token string) {
	s.needsSave = true
	s.base.Values[csrfTokenKey] = token
}

func (s *Session) LastActivity() (time.Time, bool) {
	unix, ok := s.base.Values[lastActivityKey].(int64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func (s *Session) Touch(now time.Time) {
	s.needsSave = true
	s.base.Values[lastActivityKey] = now.Unix()
}

// Reset removes all values and issues the user a fresh session cookie.
// Used on login to prevent session fixation and on logout. Clearing the
// id makes a server-side store mint a new record on save.
func (s *Session) Reset() {
	s.needsSave = true
	s.base.ID = ""
	s.base.Values = make(map[any]any)
}
