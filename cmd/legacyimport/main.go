// Command legacyimport imports accounts and habit data from the legacy
// flat-file layout: a users.json index plus one user_<hash>.json file per
// user.
//
// Legacy password hashes use an incompatible algorithm and cannot be
// carried over. Imported accounts get an unguessable placeholder hash and
// users set a real password through the password reset flow.
//
// The import is idempotent: accounts that already exist are skipped, so
// an interrupted run can simply be repeated.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/db"
	"github.com/habitkeep/habitkeep/internal/db/migrate"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
	"github.com/habitkeep/habitkeep/internal/krypto"
	"github.com/habitkeep/habitkeep/internal/store/jsonfile"
	"github.com/habitkeep/habitkeep/internal/store/sqlite"
	"github.com/habitkeep/habitkeep/migrations"
)

// legacyUser is one entry of the legacy users.json index.
type legacyUser struct {
	Email         string `json:"email"`
	PasswordHash  string `json:"password_hash"`
	UserHash      string `json:"user_hash"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAt     int64  `json:"created_at"`
}

// legacyData is the content of a legacy user_<hash>.json file. Habit
// names are plaintext in the legacy layout.
type legacyData struct {
	Habits  []habit.Habit              `json:"habits"`
	Entries map[string]map[string]bool `json:"habitData"`
}

func main() {
	var (
		legacyDir  = flag.String("legacy", "", "directory containing users.json and user_*.json files")
		driver     = flag.String("store", "sqlite", "target store driver: sqlite or jsonfile")
		sqliteFile = flag.String("sqlite", "habitkeep.db", "sqlite database file (store=sqlite)")
		jsonDir    = flag.String("dir", "data", "store directory (store=jsonfile)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *legacyDir == "" {
		fmt.Fprintln(os.Stderr, "usage: legacyimport -legacy <dir> [-store sqlite|jsonfile] [-sqlite <file>] [-dir <dir>]")
		os.Exit(1)
	}

	masterKey, err := krypto.ParseKey(os.Getenv("MASTER_KEY"))
	if err != nil {
		logger.Error("MASTER_KEY env variable is required", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	credStore, habitStore, err := openStore(ctx, *driver, *sqliteFile, *jsonDir)
	if err != nil {
		logger.Error("failed to open store", "driver", *driver, "error", err)
		os.Exit(1)
	}

	habitSvc := habit.NewService(habitStore, krypto.NewUserEncryptor(masterKey), logger)

	imp := &importer{
		credStore: credStore,
		habitSvc:  habitSvc,
		logger:    logger,
	}

	if err := imp.run(ctx, *legacyDir); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, driver, sqliteFile, jsonDir string) (auth.Store, habit.Store, error) {
	switch driver {
	case "sqlite":
		sqlDB, err := db.OpenSQLite(sqliteFile, true)
		if err != nil {
			return nil, nil, err
		}

		_, err = migrate.RunFS(ctx, sqlDB, migrations.FS, internal.BuildRevision, time.Now())
		if err != nil {
			return nil, nil, err
		}

		store := sqlite.New(sqlDB)
		return store, store, nil
	case "jsonfile":
		store, err := jsonfile.New(jsonDir)
		if err != nil {
			return nil, nil, err
		}

		return store, store, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", driver)
}

type importer struct {
	credStore auth.Store
	habitSvc  *habit.Service
	logger    *slog.Logger
}

func (imp *importer) run(ctx context.Context, legacyDir string) error {
	raw, err := os.ReadFile(filepath.Join(legacyDir, "users.json"))
	if err != nil {
		return fmt.Errorf("failed to read users.json: %w", err)
	}

	var users []legacyUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return fmt.Errorf("failed to parse users.json: %w", err)
	}

	imp.logger.Info("starting import", "users", len(users))

	var imported, skipped int
	for _, lu := range users {
		ok, err := imp.importUser(ctx, legacyDir, lu)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", lu.Email, err)
		}

		if ok {
			imported++
		} else {
			skipped++
		}
	}

	imp.logger.Info("import finished", "imported", imported, "skipped", skipped)
	return nil
}

// importUser imports one account. It reports false if the account already
// existed and was skipped.
func (imp *importer) importUser(ctx context.Context, legacyDir string, lu legacyUser) (bool, error) {
	addr, err := email.ParseAddress(lu.Email)
	if err != nil {
		return false, err
	}

	user := auth.User{
		ID:       uuid.New(),
		Email:    addr,
		Verified: lu.EmailVerified,
	}

	if lu.CreatedAt > 0 {
		user.CreatedAt = time.Unix(lu.CreatedAt, 0).UTC()
	} else {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt

	// The legacy hash algorithm is not supported, give the account an
	// unguessable placeholder so only the reset flow can set a password.
	placeholder, err := krypto.GenerateToken()
	if err != nil {
		return false, err
	}

	user.PasswordHash, err = krypto.HashArgon2(placeholder[:])
	if err != nil {
		return false, err
	}

	created, err := imp.createUser(ctx, &user)
	if err != nil || !created {
		return false, err
	}

	if err := imp.importHabitData(ctx, legacyDir, lu, user.ID); err != nil {
		return false, err
	}

	imp.logger.Info("imported account", "email", addr)
	return true, nil
}

func (imp *importer) createUser(ctx context.Context, user *auth.User) (bool, error) {
	tx, err := imp.credStore.BeginTx(ctx)
	if err != nil {
		return false, err
	}

	existing, err := tx.FindUsers(&auth.UserFilter{Emails: []email.Address{user.Email}})
	if err != nil {
		tx.Rollback()
		return false, err
	}

	if len(existing) > 0 {
		tx.Rollback()
		imp.logger.Info("account already exists, skipping", "email", user.Email)
		return false, nil
	}

	if err := tx.CreateUser(user); err != nil {
		tx.Rollback()
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

func (imp *importer) importHabitData(ctx context.Context, legacyDir string, lu legacyUser, userID uuid.UUID) error {
	name := filepath.Join(legacyDir, fmt.Sprintf("user_%s.json", lu.UserHash))
	raw, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Account without habit data, nothing more to do.
			return nil
		}
		return err
	}

	var legacy legacyData
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(name), err)
	}

	data := habit.Data{
		Habits:  legacy.Habits,
		Entries: legacy.Entries,
	}
	if data.Entries == nil {
		data.Entries = make(map[string]map[string]bool)
	}

	if err := imp.habitSvc.Import(ctx, userID, data); err != nil {
		return err
	}

	return imp.verifyRoundTrip(ctx, userID, data)
}

// verifyRoundTrip loads the freshly imported data back and checks that
// every habit name decrypts to its original value.
func (imp *importer) verifyRoundTrip(ctx context.Context, userID uuid.UUID, want habit.Data) error {
	got, err := imp.habitSvc.Load(ctx, userID)
	if err != nil {
		return err
	}

	if len(got.Habits) != len(want.Habits) {
		return fmt.Errorf("round trip check failed: imported %d habits, read back %d: %w",
			len(want.Habits), len(got.Habits), errorz.ErrConstraintViolated)
	}

	for i, h := range want.Habits {
		if got.Habits[i].Name != h.Name {
			return fmt.Errorf("round trip check failed for habit %q: %w", h.ID, errorz.ErrConstraintViolated)
		}
	}

	return nil
}
