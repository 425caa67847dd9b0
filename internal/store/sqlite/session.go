package sqlite

import (
	"github.com/habitkeep/habitkeep/internal/db"
	"github.com/habitkeep/habitkeep/internal/errorz"
	websessions "github.com/habitkeep/habitkeep/internal/web/sessions"
)

// SaveSession creates or overwrites the session record.
func (s *Store) SaveSession(sess websessions.StoredSession) error {
	var q db.Query
	q.Unsafe(`INSERT INTO sessions (id, data, expires_at) VALUES (`)
	q.Params(sess.ID, sess.Values, sess.ExpiresAt)
	q.Unsafe(`) ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`)

	qs, params := q.Get()
	_, err := s.db.Exec(qs, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

// GetSession returns the session record for the id.
func (s *Store) GetSession(id string) (websessions.StoredSession, error) {
	var q db.Query
	q.Unsafe(`SELECT id, data, expires_at FROM sessions WHERE id = `)
	q.Param(id)

	qs, params := q.Get()

	var sess websessions.StoredSession
	err := s.db.QueryRow(qs, params...).Scan(&sess.ID, &sess.Values, &sess.ExpiresAt)
	if err != nil {
		return websessions.StoredSession{}, errorz.MapDBErr(err)
	}

	return sess, nil
}

// DeleteSession removes the session record, deleting an absent record is
// not an error.
func (s *Store) DeleteSession(id string) error {
	var q db.Query
	q.Unsafe(`DELETE FROM sessions WHERE id = `)
	q.Param(id)

	qs, params := q.Get()
	_, err := s.db.Exec(qs, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}
