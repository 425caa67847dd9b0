// Package jsonfile persists credential and habit data as JSON files in a
// directory. It is intended for small single-machine deployments that want
// to avoid a database dependency.
//
// All access is serialized behind one mutex. A transaction operates on a
// copy of the in-memory state and only becomes visible, in memory and on
// disk, when it commits. Files are replaced via a temp file and rename so
// an interrupted write never leaves a half-written file behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
	websessions "github.com/habitkeep/habitkeep/internal/web/sessions"
)

const (
	usersFile    = "users.json"
	pendingFile  = "pending_registrations.json"
	codesFile    = "verification_codes.json"
	attemptsFile = "login_attempts.json"
	sessionsFile = "sessions.json"
	habitsDir    = "habits"
)

// Store keeps all state in memory and mirrors it to JSON files.
type Store struct {
	dir   string
	mu    sync.Mutex
	state *state
}

// New loads the store from dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, habitsDir), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	st, err := loadState(dir)
	if err != nil {
		return nil, err
	}

	return &Store{
		dir:   dir,
		state: st,
	}, nil
}

// BeginTx starts a transaction. The whole store is locked until the
// transaction commits or rolls back.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	s.mu.Lock()

	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	return &Tx{
		store: s,
		work:  s.state.clone(),
	}, nil
}

// GetData returns the stored habit data for the user. Users without any
// stored data get an empty result.
func (s *Store) GetData(ctx context.Context, userID uuid.UUID) (habit.StoredData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return habit.StoredData{}, err
	}

	data, ok := s.state.habits[userID]
	if !ok {
		return habit.StoredData{
			Habits:  make([]habit.StoredHabit, 0),
			Entries: make(map[string]map[string]bool),
		}, nil
	}

	return cloneHabitData(data), nil
}

// ReplaceData replaces the user's full habit state.
func (s *Store) ReplaceData(ctx context.Context, userID uuid.UUID, data habit.StoredData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	clone := cloneHabitData(data)
	if err := writeJSONFile(s.habitFile(userID), habitRecordFrom(clone)); err != nil {
		return err
	}

	s.state.habits[userID] = clone
	return nil
}

func (s *Store) habitFile(userID uuid.UUID) string {
	return filepath.Join(s.dir, habitsDir, userID.String()+".json")
}

// SaveSession creates or overwrites the session record.
func (s *Store) SaveSession(sess websessions.StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.sessions[sess.ID] = sess
	return s.persistSessions()
}

// GetSession returns the session record for the id.
func (s *Store) GetSession(id string) (websessions.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.state.sessions[id]
	if !ok {
		return websessions.StoredSession{}, fmt.Errorf("session not found: %w", errorz.ErrNotFound)
	}

	return sess, nil
}

// DeleteSession removes the session record, deleting an absent record is
// not an error.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.sessions, id)
	return s.persistSessions()
}

func (s *Store) persistSessions() error {
	records := make([]sessionRecord, 0, len(s.state.sessions))
	for _, sess := range s.state.sessions {
		records = append(records, sessionRecord{
			ID:        sess.ID,
			Values:    sess.Values,
			ExpiresAt: sess.ExpiresAt,
		})
	}

	return writeJSONFile(filepath.Join(s.dir, sessionsFile), records)
}

// Tx operates on a copy of the store state.
type Tx struct {
	store *Store
	work  *state
	done  bool
}

// Commit writes the modified state to disk and makes it visible.
func (t *Tx) Commit() error {
	if t.done {
		return errorz.ErrTxBadState
	}
	t.done = true
	defer t.store.mu.Unlock()

	if err := t.work.persistCredentials(t.store.dir); err != nil {
		return err
	}

	for userID := range t.work.deletedHabits {
		err := os.Remove(t.store.habitFile(userID))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove habit file: %w", err)
		}
	}
	t.work.deletedHabits = make(map[uuid.UUID]bool)

	t.store.state = t.work
	return nil
}

// Rollback discards the transaction.
func (t *Tx) Rollback() error {
	if t.done {
		return errorz.ErrTxBadState
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

type state struct {
	users    map[uuid.UUID]auth.User
	pending  map[string]auth.PendingRegistration
	codes    map[codeKey]auth.VerificationCode
	attempts map[string]auth.LoginAttempt
	habits   map[uuid.UUID]habit.StoredData

	// sessions is not part of the transactional credential state, the
	// session methods on Store access it directly under the mutex.
	sessions map[string]websessions.StoredSession

	// deletedHabits marks habit files to remove on commit.
	deletedHabits map[uuid.UUID]bool
}

type codeKey struct {
	email   string
	purpose auth.CodePurpose
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]auth.User),
		pending:       make(map[string]auth.PendingRegistration),
		codes:         make(map[codeKey]auth.VerificationCode),
		attempts:      make(map[string]auth.LoginAttempt),
		habits:        make(map[uuid.UUID]habit.StoredData),
		sessions:      make(map[string]websessions.StoredSession),
		deletedHabits: make(map[uuid.UUID]bool),
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.pending {
		out.pending[k] = v
	}
	for k, v := range st.codes {
		out.codes[k] = v
	}
	for k, v := range st.attempts {
		out.attempts[k] = v
	}
	for k, v := range st.habits {
		out.habits[k] = cloneHabitData(v)
	}
	// The store is locked for the whole transaction, so sessions cannot
	// change underneath the clone. They still need to be carried over,
	// commit swaps in the cloned state.
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	return out
}

func cloneHabitData(data habit.StoredData) habit.StoredData {
	out := habit.StoredData{
		Habits:  make([]habit.StoredHabit, len(data.Habits)),
		Entries: make(map[string]map[string]bool, len(data.Entries)),
	}
	copy(out.Habits, data.Habits)
	for habitID, days := range data.Entries {
		clone := make(map[string]bool, len(days))
		for day, done := range days {
			clone[day] = done
		}
		out.Entries[habitID] = clone
	}
	return out
}

func writeJSONFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(name), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = tmp.Write(data)
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", filepath.Base(name), err)
	}

	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(name), err)
	}

	return nil
}

func readJSONFile(name string, v any) (bool, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(name), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(name), err)
	}

	return true, nil
}
