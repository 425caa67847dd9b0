package jsonfile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
	"github.com/habitkeep/habitkeep/internal/krypto"
	"github.com/habitkeep/habitkeep/internal/store/jsonfile"
	"github.com/habitkeep/habitkeep/internal/store/storetest"
	websessions "github.com/habitkeep/habitkeep/internal/web/sessions"
)

func Test_Store_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		store, err := jsonfile.New(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		return store
	})
}

// A fresh Store on the same directory must see everything a previous
// instance committed.
func Test_Store_SurvivesReload(t *testing.T) {
	dir := t.TempDir()

	store, err := jsonfile.New(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	addr, err := email.ParseAddress("alice@example.com")
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}

	hash, err := krypto.HashArgon2([]byte("reallyStrongPassword1"))
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	user := auth.User{
		ID:           uuid.New(),
		Email:        addr,
		PasswordHash: hash,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}

	created := user
	if err := tx.CreateUser(&created); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	code := auth.VerificationCode{
		Email:     addr,
		Code:      "123456",
		Purpose:   auth.CodePurposeRegistration,
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
		Attempts:  2,
	}
	if err := tx.UpsertVerificationCode(&code); err != nil {
		t.Fatalf("failed to upsert code: %v", err)
	}

	attempt := auth.LoginAttempt{
		Email:        addr,
		Count:        5,
		FirstAttempt: now,
		LastAttempt:  now.Add(time.Minute),
		LockedUntil:  now.Add(15 * time.Minute),
	}
	if err := tx.UpsertLoginAttempt(&attempt); err != nil {
		t.Fatalf("failed to upsert attempt: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	data := habit.StoredData{
		Habits: []habit.StoredHabit{
			{ID: "habit-1", NameEnvelope: "ZW52ZWxvcGUtMQ==", Color: "#FF5733", Position: 0},
		},
		Entries: map[string]map[string]bool{
			"habit-1": {"2025-03-01": true},
		},
	}
	if err := store.ReplaceData(context.Background(), user.ID, data); err != nil {
		t.Fatalf("failed to replace data: %v", err)
	}

	sess := websessions.StoredSession{
		ID:        "b6sh5gpkr4qnyclvxzrfuo32aem7djt1",
		Values:    "encoded-session-values",
		ExpiresAt: now.Add(time.Hour),
	}
	if err := store.SaveSession(sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	// Load the same directory into a second instance.
	reloaded, err := jsonfile.New(dir)
	if err != nil {
		t.Fatalf("failed to reload store: %v", err)
	}

	tx2, err := reloaded.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx2.Rollback()

	users, err := tx2.FindUsers(&auth.UserFilter{IDs: []uuid.UUID{user.ID}})
	if err != nil || len(users) != 1 {
		t.Fatalf("failed to find user after reload: %v (%d found)", err, len(users))
	}

	got := users[0]
	if got.Email != user.Email || !got.Verified {
		t.Errorf("user did not survive reload: %+v", got)
	}
	if got.PasswordHash.String() != user.PasswordHash.String() {
		t.Errorf("password hash did not survive reload")
	}
	if !got.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("created at did not survive reload")
	}

	gotCode, err := tx2.FindVerificationCode(addr, auth.CodePurposeRegistration)
	if err != nil {
		t.Fatalf("failed to find code after reload: %v", err)
	}
	if gotCode.Code != code.Code || gotCode.Attempts != code.Attempts {
		t.Errorf("code did not survive reload: %+v", gotCode)
	}

	gotAttempt, err := tx2.FindLoginAttempt(addr)
	if err != nil {
		t.Fatalf("failed to find attempt after reload: %v", err)
	}
	if gotAttempt.Count != attempt.Count || !gotAttempt.LockedUntil.Equal(attempt.LockedUntil) {
		t.Errorf("attempt did not survive reload: %+v", gotAttempt)
	}

	gotData, err := reloaded.GetData(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to get data after reload: %v", err)
	}
	if len(gotData.Habits) != 1 || gotData.Habits[0].NameEnvelope != "ZW52ZWxvcGUtMQ==" {
		t.Errorf("habit data did not survive reload: %+v", gotData)
	}
	if !gotData.Entries["habit-1"]["2025-03-01"] {
		t.Errorf("habit entries did not survive reload: %+v", gotData.Entries)
	}

	gotSess, err := reloaded.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("failed to get session after reload: %v", err)
	}
	if gotSess.Values != sess.Values || !gotSess.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("session did not survive reload: %+v", gotSess)
	}
}

func Test_Tx_DoubleFinish(t *testing.T) {
	store, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	if err := tx.Commit(); !errors.Is(err, errorz.ErrTxBadState) {
		t.Errorf("expected ErrTxBadState on second commit, got %v", err)
	}

	if err := tx.Rollback(); !errors.Is(err, errorz.ErrTxBadState) {
		t.Errorf("expected ErrTxBadState on rollback after commit, got %v", err)
	}
}
