package sessions

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gsessions "github.com/gorilla/sessions"

	"github.com/habitkeep/habitkeep/internal/errorz"
)

const testCookieName = "hk_session"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func Test_ServerStore(t *testing.T) {
	t.Run("ok, save issues a cookie and loads the record", func(t *testing.T) {
		store, backend := newTestStore(t)

		cookie := saveSession(t, store, map[any]any{"hello": "world"})

		if len(backend.records) != 1 {
			t.Fatalf("expected one stored record, got %d", len(backend.records))
		}

		sess := loadSession(t, store, cookie)
		if sess.IsNew {
			t.Fatalf("expected the session to load from the backend")
		}
		if got := sess.Values["hello"]; got != "world" {
			t.Errorf("values did not round trip, got %v", got)
		}
	})

	t.Run("ok, cookie only carries the session id", func(t *testing.T) {
		store, backend := newTestStore(t)

		cookie := saveSession(t, store, map[any]any{"secret": "value"})

		var id string
		for k := range backend.records {
			id = k
		}

		var decoded string
		if err := store.codecs[0].Decode(testCookieName, cookie.Value, &decoded); err != nil {
			t.Fatalf("failed to decode cookie: %v", err)
		}
		if decoded != id {
			t.Errorf("want cookie to carry the record id %q, got %q", id, decoded)
		}
	})

	t.Run("ok, save refreshes the expiry", func(t *testing.T) {
		store, backend := newTestStore(t)

		cookie := saveSession(t, store, map[any]any{"k": "v"})

		store.NowFunc = func() time.Time { return testNow.Add(30 * time.Minute) }
		sess := loadSession(t, store, cookie)
		saveExisting(t, store, cookie, sess)

		for _, r := range backend.records {
			want := testNow.Add(30*time.Minute + time.Hour)
			if !r.ExpiresAt.Equal(want) {
				t.Errorf("want expiry %v, got %v", want, r.ExpiresAt)
			}
		}
	})

	t.Run("ok, negative max age destroys the record", func(t *testing.T) {
		store, backend := newTestStore(t)

		cookie := saveSession(t, store, map[any]any{"k": "v"})

		sess := loadSession(t, store, cookie)
		sess.Options.MaxAge = -1
		saveExisting(t, store, cookie, sess)

		if len(backend.records) != 0 {
			t.Fatalf("expected the record to be destroyed, got %d records", len(backend.records))
		}

		// Replaying the old cookie now yields a fresh session.
		replayed := loadSession(t, store, cookie)
		if !replayed.IsNew {
			t.Fatalf("expected a fresh session after destroy")
		}
		if len(replayed.Values) != 0 {
			t.Errorf("expected no values, got %v", replayed.Values)
		}
	})

	t.Run("ok, expired record is deleted on load", func(t *testing.T) {
		store, backend := newTestStore(t)

		cookie := saveSession(t, store, map[any]any{"k": "v"})

		store.NowFunc = func() time.Time { return testNow.Add(2 * time.Hour) }

		sess := loadSession(t, store, cookie)
		if !sess.IsNew {
			t.Fatalf("expected a fresh session for an expired record")
		}
		if len(backend.records) != 0 {
			t.Errorf("expected the expired record to be removed, got %d records", len(backend.records))
		}
	})

	t.Run("ok, unknown record yields a fresh session", func(t *testing.T) {
		store, backend := newTestStore(t)

		cookie := saveSession(t, store, map[any]any{"k": "v"})
		for k := range backend.records {
			delete(backend.records, k)
		}

		sess := loadSession(t, store, cookie)
		if !sess.IsNew {
			t.Fatalf("expected a fresh session for an unknown record")
		}
	})

	t.Run("fail, tampered cookie", func(t *testing.T) {
		store, _ := newTestStore(t)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: testCookieName, Value: "not-a-valid-cookie"})

		if _, err := store.New(r, testCookieName); err == nil {
			t.Fatalf("expected an error for a tampered cookie")
		}
	})

	t.Run("fail, backend save error", func(t *testing.T) {
		store, backend := newTestStore(t)
		backend.err = errors.New("disk full")

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		sess, err := store.New(r, testCookieName)
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		w := httptest.NewRecorder()
		if err := store.Save(r, w, sess); !errors.Is(err, backend.err) {
			t.Fatalf("expected the backend error, got %v", err)
		}
	})
}

// saveSession creates a new session with the given values, saves it and
// returns the resulting cookie.
func saveSession(t *testing.T, store *ServerStore, values map[any]any) *http.Cookie {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.New(r, testCookieName)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	for k, v := range values {
		sess.Values[k] = v
	}

	w := httptest.NewRecorder()
	if err := store.Save(r, w, sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return cookies[0]
}

// saveExisting saves an already loaded session in the context of a
// request carrying the cookie.
func saveExisting(t *testing.T, store *ServerStore, cookie *http.Cookie, sess *gsessions.Session) {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)

	w := httptest.NewRecorder()
	if err := store.Save(r, w, sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
}

func loadSession(t *testing.T, store *ServerStore, cookie *http.Cookie) *gsessions.Session {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)

	sess, err := store.New(r, testCookieName)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	return sess
}

func newTestStore(t *testing.T) (*ServerStore, *memBackend) {
	t.Helper()

	backend := &memBackend{records: make(map[string]StoredSession)}
	store := NewServerStore(backend, &gsessions.Options{
		Path:     "/",
		HttpOnly: true,
	}, time.Hour, []byte("test-session-hash-key-0123456789"))
	store.NowFunc = func() time.Time { return testNow }

	return store, backend
}

// memBackend keeps session records in a map. A non-nil err is returned
// from every method.
type memBackend struct {
	records map[string]StoredSession
	err     error
}

func (m *memBackend) SaveSession(sess StoredSession) error {
	if m.err != nil {
		return m.err
	}
	m.records[sess.ID] = sess
	return nil
}

func (m *memBackend) GetSession(id string) (StoredSession, error) {
	if m.err != nil {
		return StoredSession{}, m.err
	}

	sess, ok := m.records[id]
	if !ok {
		return StoredSession{}, fmt.Errorf("session not found: %w", errorz.ErrNotFound)
	}
	return sess, nil
}

func (m *memBackend) DeleteSession(id string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.records, id)
	return nil
}
