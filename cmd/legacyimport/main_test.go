package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/habit"
	"github.com/habitkeep/habitkeep/internal/krypto"
	"github.com/habitkeep/habitkeep/internal/store/jsonfile"
)

const testMasterKey = "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d"

const legacyUsers = `[
	{
		"email": "alice@example.com",
		"password_hash": "$legacy$1$abcdef",
		"user_hash": "a1b2c3",
		"email_verified": true,
		"created_at": 1700000000
	},
	{
		"email": "bob@example.com",
		"password_hash": "$legacy$1$fedcba",
		"user_hash": "d4e5f6",
		"email_verified": false,
		"created_at": 0
	}
]`

const legacyHabits = `{
	"habits": [
		{"id": "habit-1", "name": "Morning run", "color": "#FF5733"},
		{"id": "habit-2", "name": "Read 10 pages"}
	],
	"habitData": {
		"habit-1": {"2025-03-01": true, "2025-03-02": false}
	}
}`

func Test_Importer_Run(t *testing.T) {
	ctx := context.Background()

	legacyDir := t.TempDir()
	writeFile(t, legacyDir, "users.json", legacyUsers)
	writeFile(t, legacyDir, "user_a1b2c3.json", legacyHabits)
	// Bob has no habit file.

	store, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	imp := newTestImporter(t, store)

	if err := imp.run(ctx, legacyDir); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	alice := findUser(t, store, "alice@example.com")
	if !alice.Verified {
		t.Errorf("expected alice to be verified")
	}
	if want := time.Unix(1700000000, 0).UTC(); !alice.CreatedAt.Equal(want) {
		t.Errorf("want created at %v, got %v", want, alice.CreatedAt)
	}
	if alice.PasswordHash.String() == "" {
		t.Errorf("expected a placeholder password hash")
	}

	bob := findUser(t, store, "bob@example.com")
	if bob.Verified {
		t.Errorf("expected bob to not be verified")
	}

	// Habit names decrypt back to their legacy plaintext.
	data, err := imp.habitSvc.Load(ctx, alice.ID)
	if err != nil {
		t.Fatalf("failed to load habit data: %v", err)
	}
	if len(data.Habits) != 2 || data.Habits[0].Name != "Morning run" || data.Habits[1].Name != "Read 10 pages" {
		t.Fatalf("habit data did not survive import: %+v", data.Habits)
	}
	if !data.Entries["habit-1"]["2025-03-01"] {
		t.Errorf("entries did not survive import: %+v", data.Entries)
	}

	t.Run("ok, second run skips existing accounts", func(t *testing.T) {
		if err := imp.run(ctx, legacyDir); err != nil {
			t.Fatalf("re-run failed: %v", err)
		}

		again := findUser(t, store, "alice@example.com")
		if again.ID != alice.ID {
			t.Errorf("expected alice to keep her id, got %s", again.ID)
		}
	})
}

func Test_Importer_Run_MissingIndex(t *testing.T) {
	store, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	imp := newTestImporter(t, store)

	if err := imp.run(context.Background(), t.TempDir()); err == nil {
		t.Fatalf("expected an error for a directory without users.json")
	}
}

func newTestImporter(t *testing.T, store *jsonfile.Store) *importer {
	t.Helper()

	masterKey, err := krypto.ParseKey(testMasterKey)
	if err != nil {
		t.Fatalf("failed to parse master key: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &importer{
		credStore: store,
		habitSvc:  habit.NewService(store, krypto.NewUserEncryptor(masterKey), logger),
		logger:    logger,
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func findUser(t *testing.T, store auth.Store, addr string) auth.User {
	t.Helper()

	parsed, err := email.ParseAddress(addr)
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	users, err := tx.FindUsers(&auth.UserFilter{Emails: []email.Address{parsed}})
	if err != nil {
		t.Fatalf("failed to find users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("want 1 user for %s, got %d", addr, len(users))
	}

	return users[0]
}
