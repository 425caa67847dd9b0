package jsonfile

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/habit"
	"github.com/habitkeep/habitkeep/internal/krypto"
	websessions "github.com/habitkeep/habitkeep/internal/web/sessions"
)

// The on-disk records spell out their fields instead of marshaling the
// domain types directly, so the file format does not silently change when
// a domain type gains a field.

type userRecord struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type pendingRecord struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type codeRecord struct {
	Email     string    `json:"email"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"code"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type attemptRecord struct {
	Email        string     `json:"email"`
	Count        int        `json:"count"`
	FirstAttempt time.Time  `json:"firstAttempt"`
	LastAttempt  time.Time  `json:"lastAttempt"`
	LockedUntil  *time.Time `json:"lockedUntil,omitempty"`
}

type sessionRecord struct {
	ID        string    `json:"id"`
	Values    string    `json:"values"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type habitRecord struct {
	Habits  []storedHabitRecord        `json:"habits"`
	Entries map[string]map[string]bool `json:"entries"`
}

type storedHabitRecord struct {
	ID           string `json:"id"`
	NameEnvelope string `json:"nameEnvelope"`
	Color        string `json:"color,omitempty"`
	Position     int    `json:"position"`
}

func loadState(dir string) (*state, error) {
	st := newState()

	var users []userRecord
	if _, err := readJSONFile(filepath.Join(dir, usersFile), &users); err != nil {
		return nil, err
	}
	for _, r := range users {
		u, err := userFromRecord(r)
		if err != nil {
			return nil, err
		}
		st.users[u.ID] = u
	}

	var pending []pendingRecord
	if _, err := readJSONFile(filepath.Join(dir, pendingFile), &pending); err != nil {
		return nil, err
	}
	for _, r := range pending {
		p, err := pendingFromRecord(r)
		if err != nil {
			return nil, err
		}
		st.pending[string(p.Email)] = p
	}

	var codes []codeRecord
	if _, err := readJSONFile(filepath.Join(dir, codesFile), &codes); err != nil {
		return nil, err
	}
	for _, r := range codes {
		c, err := codeFromRecord(r)
		if err != nil {
			return nil, err
		}
		st.codes[codeKey{email: string(c.Email), purpose: c.Purpose}] = c
	}

	var attempts []attemptRecord
	if _, err := readJSONFile(filepath.Join(dir, attemptsFile), &attempts); err != nil {
		return nil, err
	}
	for _, r := range attempts {
		a, err := attemptFromRecord(r)
		if err != nil {
			return nil, err
		}
		st.attempts[string(a.Email)] = a
	}

	var sessions []sessionRecord
	if _, err := readJSONFile(filepath.Join(dir, sessionsFile), &sessions); err != nil {
		return nil, err
	}
	for _, r := range sessions {
		st.sessions[r.ID] = websessions.StoredSession{
			ID:        r.ID,
			Values:    r.Values,
			ExpiresAt: r.ExpiresAt,
		}
	}

	if err := loadHabits(dir, st); err != nil {
		return nil, err
	}

	return st, nil
}

func loadHabits(dir string, st *state) error {
	matches, err := filepath.Glob(filepath.Join(dir, habitsDir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list habit files: %w", err)
	}

	for _, name := range matches {
		base := filepath.Base(name)
		userID, err := uuid.Parse(base[:len(base)-len(".json")])
		if err != nil {
			return fmt.Errorf("habit file %q is not named after a user id: %w", base, err)
		}

		var r habitRecord
		if _, err := readJSONFile(name, &r); err != nil {
			return err
		}

		st.habits[userID] = habitDataFromRecord(r)
	}

	return nil
}

func (st *state) persistCredentials(dir string) error {
	users := make([]userRecord, 0, len(st.users))
	for _, u := range st.users {
		users = append(users, userToRecord(u))
	}
	if err := writeJSONFile(filepath.Join(dir, usersFile), users); err != nil {
		return err
	}

	pending := make([]pendingRecord, 0, len(st.pending))
	for _, p := range st.pending {
		pending = append(pending, pendingToRecord(p))
	}
	if err := writeJSONFile(filepath.Join(dir, pendingFile), pending); err != nil {
		return err
	}

	codes := make([]codeRecord, 0, len(st.codes))
	for _, c := range st.codes {
		codes = append(codes, codeToRecord(c))
	}
	if err := writeJSONFile(filepath.Join(dir, codesFile), codes); err != nil {
		return err
	}

	attempts := make([]attemptRecord, 0, len(st.attempts))
	for _, a := range st.attempts {
		attempts = append(attempts, attemptToRecord(a))
	}
	return writeJSONFile(filepath.Join(dir, attemptsFile), attempts)
}

func userToRecord(u auth.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Email:        string(u.Email),
		PasswordHash: u.PasswordHash.String(),
		Verified:     u.Verified,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromRecord(r userRecord) (auth.User, error) {
	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		return auth.User{}, err
	}

	hash, err := krypto.ParseArgon2Hash(r.PasswordHash)
	if err != nil {
		return auth.User{}, err
	}

	return auth.User{
		ID:           r.ID,
		Email:        addr,
		PasswordHash: hash,
		Verified:     r.Verified,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func pendingToRecord(p auth.PendingRegistration) pendingRecord {
	return pendingRecord{
		Email:        string(p.Email),
		PasswordHash: p.PasswordHash.String(),
		CreatedAt:    p.CreatedAt,
		ExpiresAt:    p.ExpiresAt,
	}
}

func pendingFromRecord(r pendingRecord) (auth.PendingRegistration, error) {
	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		return auth.PendingRegistration{}, err
	}

	hash, err := krypto.ParseArgon2Hash(r.PasswordHash)
	if err != nil {
		return auth.PendingRegistration{}, err
	}

	return auth.PendingRegistration{
		Email:        addr,
		PasswordHash: hash,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}, nil
}

func codeToRecord(c auth.VerificationCode) codeRecord {
	return codeRecord{
		Email:     string(c.Email),
		Purpose:   string(c.Purpose),
		Code:      string(c.Code),
		Attempts:  c.Attempts,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

func codeFromRecord(r codeRecord) (auth.VerificationCode, error) {
	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		return auth.VerificationCode{}, err
	}

	purpose := auth.CodePurpose(r.Purpose)
	if !purpose.Valid() {
		return auth.VerificationCode{}, fmt.Errorf("unknown code purpose %q", r.Purpose)
	}

	return auth.VerificationCode{
		Email:     addr,
		Purpose:   purpose,
		Code:      auth.Code(r.Code),
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}, nil
}

func attemptToRecord(a auth.LoginAttempt) attemptRecord {
	r := attemptRecord{
		Email:        string(a.Email),
		Count:        a.Count,
		FirstAttempt: a.FirstAttempt,
		LastAttempt:  a.LastAttempt,
	}
	if !a.LockedUntil.IsZero() {
		locked := a.LockedUntil
		r.LockedUntil = &locked
	}
	return r
}

func attemptFromRecord(r attemptRecord) (auth.LoginAttempt, error) {
	addr, err := email.ParseAddress(r.Email)
	if err != nil {
		return auth.LoginAttempt{}, err
	}

	a := auth.LoginAttempt{
		Email:        addr,
		Count:        r.Count,
		FirstAttempt: r.FirstAttempt,
		LastAttempt:  r.LastAttempt,
	}
	if r.LockedUntil != nil {
		a.LockedUntil = *r.LockedUntil
	}
	return a, nil
}

func habitRecordFrom(data habit.StoredData) habitRecord {
	r := habitRecord{
		Habits:  make([]storedHabitRecord, 0, len(data.Habits)),
		Entries: data.Entries,
	}
	for _, h := range data.Habits {
		r.Habits = append(r.Habits, storedHabitRecord{
			ID:           h.ID,
			NameEnvelope: h.NameEnvelope,
			Color:        h.Color,
			Position:     h.Position,
		})
	}
	return r
}

func habitDataFromRecord(r habitRecord) habit.StoredData {
	data := habit.StoredData{
		Habits:  make([]habit.StoredHabit, 0, len(r.Habits)),
		Entries: r.Entries,
	}
	if data.Entries == nil {
		data.Entries = make(map[string]map[string]bool)
	}
	for _, h := range r.Habits {
		data.Habits = append(data.Habits, habit.StoredHabit{
			ID:           h.ID,
			NameEnvelope: h.NameEnvelope,
			Color:        h.Color,
			Position:     h.Position,
		})
	}
	return data
}
