// Package storetest runs a shared contract suite against a store
// implementation. Both backends must show identical behavior so the
// services can stay oblivious to which one is configured.
package storetest

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
	websessions "github.com/habitkeep/habitkeep/internal/web/sessions"
)

// Store is the combined surface the suite exercises.
type Store interface {
	auth.Store
	habit.Store
	websessions.Backend
}

// Run runs the full contract suite. newStore must return a fresh, empty
// store for every call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore) })
	t.Run("pending registrations", func(t *testing.T) { testPendingRegistrations(t, newStore) })
	t.Run("verification codes", func(t *testing.T) { testVerificationCodes(t, newStore) })
	t.Run("login attempts", func(t *testing.T) { testLoginAttempts(t, newStore) })
	t.Run("habit data", func(t *testing.T) { testHabitData(t, newStore) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore) })
}

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testUser(t *testing.T, addr string) auth.User {
	t.Helper()

	return auth.User{
		ID:           uuid.New(),
		Email:        mustAddr(t, addr),
		PasswordHash: testHash(t, "reallyStrongPassword1"),
		Verified:     true,
		CreatedAt:    testTime,
		UpdatedAt:    testTime,
	}
}

func testHash(t *testing.T, raw string) krypto.Argon2Hash {
	t.Helper()

	hash, err := krypto.HashArgon2([]byte(raw))
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}

	return hash
}

func mustAddr(t *testing.T, raw string) email.Address {
	t.Helper()

	addr, err := email.ParseAddress(raw)
	if err != nil {
		t.Fatalf("failed to parse address %q: %v", raw, err)
	}

	return addr
}

// inTx runs f in a transaction and commits.
func inTx(t *testing.T, store Store, f func(tx auth.Tx)) {
	t.Helper()

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}

	f(tx)

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func testUsers(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ok, create and find", func(t *testing.T) {
		store := newStore(t)

		alice := testUser(t, "alice@example.com")
		bob := testUser(t, "bob@example.com")
		bob.Verified = false

		inTx(t, store, func(tx auth.Tx) {
			for _, u := range []auth.User{alice, bob} {
				u := u
				if err := tx.CreateUser(&u); err != nil {
					t.Fatalf("failed to create user: %v", err)
				}
			}
		})

		tests := map[string]struct {
			filter *auth.UserFilter
			want   []uuid.UUID
		}{
			"all":          {&auth.UserFilter{}, []uuid.UUID{alice.ID, bob.ID}},
			"by id":        {&auth.UserFilter{IDs: []uuid.UUID{alice.ID}}, []uuid.UUID{alice.ID}},
			"by email":     {&auth.UserFilter{Emails: []email.Address{bob.Email}}, []uuid.UUID{bob.ID}},
			"verified":     {&auth.UserFilter{Verified: ptr(true)}, []uuid.UUID{alice.ID}},
			"not verified": {&auth.UserFilter{Verified: ptr(false)}, []uuid.UUID{bob.ID}},
			"no match":     {&auth.UserFilter{IDs: []uuid.UUID{uuid.New()}}, nil},
			"combined":     {&auth.UserFilter{Emails: []email.Address{alice.Email}, Verified: ptr(false)}, nil},
		}

		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				inTx(t, store, func(tx auth.Tx) {
					got, err := tx.FindUsers(tc.filter)
					if err != nil {
						t.Fatalf("failed to find users: %v", err)
					}

					if len(got) != len(tc.want) {
						t.Fatalf("want %d users, got %d", len(tc.want), len(got))
					}

					found := make(map[uuid.UUID]bool)
					for _, u := range got {
						found[u.ID] = true
					}

					for _, id := range tc.want {
						if !found[id] {
							t.Errorf("expected user %s in result", id)
						}
					}
				})
			})
		}
	})

	t.Run("ok, fields round trip", func(t *testing.T) {
		store := newStore(t)

		want := testUser(t, "alice@example.com")

		inTx(t, store, func(tx auth.Tx) {
			u := want
			if err := tx.CreateUser(&u); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindUsers(&auth.UserFilter{IDs: []uuid.UUID{want.ID}})
			if err != nil {
				t.Fatalf("failed to find user: %v", err)
			}

			if len(got) != 1 {
				t.Fatalf("want 1 user, got %d", len(got))
			}

			if got[0].Email != want.Email || got[0].Verified != want.Verified {
				t.Errorf("want %+v, got %+v", want, got[0])
			}

			if got[0].PasswordHash.String() != want.PasswordHash.String() {
				t.Errorf("password hash did not round trip")
			}

			if !got[0].CreatedAt.Equal(want.CreatedAt) || !got[0].UpdatedAt.Equal(want.UpdatedAt) {
				t.Errorf("timestamps did not round trip: %+v", got[0])
			}
		})
	})

	t.Run("fail, zero uuid", func(t *testing.T) {
		store := newStore(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer tx.Rollback()

		u := testUser(t, "alice@example.com")
		u.ID = uuid.Nil

		if err := tx.CreateUser(&u); !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected ErrConstraintViolated, got %v", err)
		}
	})

	t.Run("fail, duplicate email", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			u := testUser(t, "alice@example.com")
			if err := tx.CreateUser(&u); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
		})

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer tx.Rollback()

		dup := testUser(t, "alice@example.com")
		if err := tx.CreateUser(&dup); !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected ErrConstraintViolated, got %v", err)
		}
	})

	t.Run("ok, update", func(t *testing.T) {
		store := newStore(t)

		u := testUser(t, "alice@example.com")

		inTx(t, store, func(tx auth.Tx) {
			created := u
			if err := tx.CreateUser(&created); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
		})

		u.PasswordHash = testHash(t, "brandNewPassword9")
		u.UpdatedAt = testTime.Add(time.Hour)

		inTx(t, store, func(tx auth.Tx) {
			updated := u
			if err := tx.UpdateUser(&updated); err != nil {
				t.Fatalf("failed to update user: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindUsers(&auth.UserFilter{IDs: []uuid.UUID{u.ID}})
			if err != nil || len(got) != 1 {
				t.Fatalf("failed to find user: %v (%d found)", err, len(got))
			}

			if got[0].PasswordHash.String() != u.PasswordHash.String() {
				t.Errorf("password hash was not updated")
			}

			if !got[0].UpdatedAt.Equal(u.UpdatedAt) {
				t.Errorf("updated at was not updated")
			}
		})
	})

	t.Run("fail, update unknown user", func(t *testing.T) {
		store := newStore(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer tx.Rollback()

		u := testUser(t, "alice@example.com")
		if err := tx.UpdateUser(&u); !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ok, delete", func(t *testing.T) {
		store := newStore(t)

		u := testUser(t, "alice@example.com")

		inTx(t, store, func(tx auth.Tx) {
			created := u
			if err := tx.CreateUser(&created); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			if err := tx.DeleteUser(u.ID); err != nil {
				t.Fatalf("failed to delete user: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindUsers(&auth.UserFilter{IDs: []uuid.UUID{u.ID}})
			if err != nil {
				t.Fatalf("failed to find users: %v", err)
			}

			if len(got) != 0 {
				t.Errorf("expected user to be deleted")
			}
		})
	})
}

func testRollback(t *testing.T, newStore func(t *testing.T) Store) {
	store := newStore(t)

	u := testUser(t, "alice@example.com")

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}

	created := u
	if err := tx.CreateUser(&created); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	inTx(t, store, func(tx auth.Tx) {
		got, err := tx.FindUsers(&auth.UserFilter{IDs: []uuid.UUID{u.ID}})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(got) != 0 {
			t.Errorf("expected rollback to discard the user")
		}
	})
}

func testPendingRegistrations(t *testing.T, newStore func(t *testing.T) Store) {
	addr := "alice@example.com"

	t.Run("ok, upsert and find", func(t *testing.T) {
		store := newStore(t)

		want := auth.PendingRegistration{
			Email:        mustAddr(t, addr),
			PasswordHash: testHash(t, "reallyStrongPassword1"),
			CreatedAt:    testTime,
			ExpiresAt:    testTime.Add(30 * time.Minute),
		}

		inTx(t, store, func(tx auth.Tx) {
			p := want
			if err := tx.UpsertPendingRegistration(&p); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindPendingRegistration(want.Email)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}

			if got.Email != want.Email || got.PasswordHash.String() != want.PasswordHash.String() {
				t.Errorf("want %+v, got %+v", want, got)
			}

			if !got.ExpiresAt.Equal(want.ExpiresAt) {
				t.Errorf("expires at did not round trip")
			}
		})
	})

	t.Run("ok, upsert overwrites", func(t *testing.T) {
		store := newStore(t)

		first := auth.PendingRegistration{
			Email:        mustAddr(t, addr),
			PasswordHash: testHash(t, "reallyStrongPassword1"),
			CreatedAt:    testTime,
			ExpiresAt:    testTime.Add(30 * time.Minute),
		}
		second := first
		second.PasswordHash = testHash(t, "brandNewPassword9")
		second.ExpiresAt = testTime.Add(time.Hour)

		inTx(t, store, func(tx auth.Tx) {
			p := first
			if err := tx.UpsertPendingRegistration(&p); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			p := second
			if err := tx.UpsertPendingRegistration(&p); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindPendingRegistration(second.Email)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}

			if got.PasswordHash.String() != second.PasswordHash.String() {
				t.Errorf("expected the second upsert to win")
			}
		})
	})

	t.Run("fail, find unknown", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			_, err := tx.FindPendingRegistration(mustAddr(t, addr))
			if !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("ok, delete is idempotent", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			if err := tx.DeletePendingRegistration(mustAddr(t, addr)); err != nil {
				t.Fatalf("expected deleting an absent record to succeed, got %v", err)
			}
		})
	})
}

func testVerificationCodes(t *testing.T, newStore func(t *testing.T) Store) {
	addr := mustAddr(t, "alice@example.com")

	newCode := func(purpose auth.CodePurpose, code auth.Code, createdAt time.Time) auth.VerificationCode {
		return auth.VerificationCode{
			Email:     addr,
			Code:      code,
			Purpose:   purpose,
			CreatedAt: createdAt,
			ExpiresAt: createdAt.Add(15 * time.Minute),
			Attempts:  0,
		}
	}

	t.Run("ok, purposes are independent", func(t *testing.T) {
		store := newStore(t)

		reg := newCode(auth.CodePurposeRegistration, "111111", testTime)
		reset := newCode(auth.CodePurposePasswordReset, "222222", testTime.Add(time.Minute))

		inTx(t, store, func(tx auth.Tx) {
			for _, c := range []auth.VerificationCode{reg, reset} {
				c := c
				if err := tx.UpsertVerificationCode(&c); err != nil {
					t.Fatalf("failed to upsert: %v", err)
				}
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindVerificationCode(addr, auth.CodePurposeRegistration)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}
			if got.Code != reg.Code {
				t.Errorf("want code %s, got %s", reg.Code, got.Code)
			}

			got, err = tx.FindVerificationCode(addr, auth.CodePurposePasswordReset)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}
			if got.Code != reset.Code {
				t.Errorf("want code %s, got %s", reset.Code, got.Code)
			}

			// Deleting one purpose leaves the other.
			if err := tx.DeleteVerificationCode(addr, auth.CodePurposeRegistration); err != nil {
				t.Fatalf("failed to delete: %v", err)
			}

			if _, err := tx.FindVerificationCode(addr, auth.CodePurposeRegistration); !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if _, err := tx.FindVerificationCode(addr, auth.CodePurposePasswordReset); err != nil {
				t.Fatalf("expected reset code to survive, got %v", err)
			}
		})
	})

	t.Run("ok, update attempts", func(t *testing.T) {
		store := newStore(t)

		c := newCode(auth.CodePurposeRegistration, "111111", testTime)

		inTx(t, store, func(tx auth.Tx) {
			created := c
			if err := tx.UpsertVerificationCode(&created); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		c.Attempts = 3

		inTx(t, store, func(tx auth.Tx) {
			updated := c
			if err := tx.UpdateVerificationCode(&updated); err != nil {
				t.Fatalf("failed to update: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindVerificationCode(addr, auth.CodePurposeRegistration)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}

			if got.Attempts != 3 {
				t.Errorf("want 3 attempts, got %d", got.Attempts)
			}
		})
	})

	t.Run("fail, update unknown code", func(t *testing.T) {
		store := newStore(t)

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer tx.Rollback()

		c := newCode(auth.CodePurposeRegistration, "111111", testTime)
		if err := tx.UpdateVerificationCode(&c); !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ok, find latest across purposes", func(t *testing.T) {
		store := newStore(t)

		older := newCode(auth.CodePurposeRegistration, "111111", testTime)
		newer := newCode(auth.CodePurposePasswordReset, "222222", testTime.Add(time.Minute))

		inTx(t, store, func(tx auth.Tx) {
			for _, c := range []auth.VerificationCode{older, newer} {
				c := c
				if err := tx.UpsertVerificationCode(&c); err != nil {
					t.Fatalf("failed to upsert: %v", err)
				}
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindLatestVerificationCode(addr)
			if err != nil {
				t.Fatalf("failed to find latest: %v", err)
			}

			if got.Code != newer.Code {
				t.Errorf("want latest code %s, got %s", newer.Code, got.Code)
			}
		})
	})

	t.Run("fail, find latest with no codes", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			_, err := tx.FindLatestVerificationCode(addr)
			if !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("ok, delete is idempotent", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			if err := tx.DeleteVerificationCode(addr, auth.CodePurposeResetToken); err != nil {
				t.Fatalf("expected deleting an absent record to succeed, got %v", err)
			}
		})
	})
}

func testLoginAttempts(t *testing.T, newStore func(t *testing.T) Store) {
	addr := mustAddr(t, "alice@example.com")

	t.Run("ok, upsert and find", func(t *testing.T) {
		store := newStore(t)

		want := auth.LoginAttempt{
			Email:        addr,
			Count:        3,
			FirstAttempt: testTime,
			LastAttempt:  testTime.Add(time.Minute),
		}

		inTx(t, store, func(tx auth.Tx) {
			a := want
			if err := tx.UpsertLoginAttempt(&a); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindLoginAttempt(addr)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}

			if got.Count != want.Count {
				t.Errorf("want count %d, got %d", want.Count, got.Count)
			}

			// A record without a lockout must come back with a zero
			// LockedUntil, that is what the service checks.
			if !got.LockedUntil.IsZero() {
				t.Errorf("expected zero LockedUntil, got %v", got.LockedUntil)
			}

			if !got.FirstAttempt.Equal(want.FirstAttempt) || !got.LastAttempt.Equal(want.LastAttempt) {
				t.Errorf("timestamps did not round trip: %+v", got)
			}
		})
	})

	t.Run("ok, lockout round trips", func(t *testing.T) {
		store := newStore(t)

		want := auth.LoginAttempt{
			Email:        addr,
			Count:        5,
			FirstAttempt: testTime,
			LastAttempt:  testTime.Add(time.Minute),
			LockedUntil:  testTime.Add(15 * time.Minute),
		}

		inTx(t, store, func(tx auth.Tx) {
			a := want
			if err := tx.UpsertLoginAttempt(&a); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			got, err := tx.FindLoginAttempt(addr)
			if err != nil {
				t.Fatalf("failed to find: %v", err)
			}

			if !got.LockedUntil.Equal(want.LockedUntil) {
				t.Errorf("want LockedUntil %v, got %v", want.LockedUntil, got.LockedUntil)
			}
		})
	})

	t.Run("fail, find unknown", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			_, err := tx.FindLoginAttempt(addr)
			if !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("ok, delete", func(t *testing.T) {
		store := newStore(t)

		inTx(t, store, func(tx auth.Tx) {
			a := auth.LoginAttempt{
				Email:        addr,
				Count:        1,
				FirstAttempt: testTime,
				LastAttempt:  testTime,
			}
			if err := tx.UpsertLoginAttempt(&a); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		})

		inTx(t, store, func(tx auth.Tx) {
			if err := tx.DeleteLoginAttempt(addr); err != nil {
				t.Fatalf("failed to delete: %v", err)
			}

			// Deleting again is not an error.
			if err := tx.DeleteLoginAttempt(addr); err != nil {
				t.Fatalf("expected idempotent delete, got %v", err)
			}

			if _, err := tx.FindLoginAttempt(addr); !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	})
}

func testHabitData(t *testing.T, newStore func(t *testing.T) Store) {
	testData := func() habit.StoredData {
		return habit.StoredData{
			Habits: []habit.StoredHabit{
				{ID: "habit-1", NameEnvelope: "ZW52ZWxvcGUtMQ==", Color: "#FF5733", Position: 0},
				{ID: "habit-2", NameEnvelope: "ZW52ZWxvcGUtMg==", Position: 1},
			},
			Entries: map[string]map[string]bool{
				"habit-1": {
					"2025-03-01": true,
					"2025-03-02": false,
				},
			},
		}
	}

	createOwner := func(t *testing.T, store Store, addr string) uuid.UUID {
		u := testUser(t, addr)
		inTx(t, store, func(tx auth.Tx) {
			created := u
			if err := tx.CreateUser(&created); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
		})
		return u.ID
	}

	t.Run("ok, empty user", func(t *testing.T) {
		store := newStore(t)

		got, err := store.GetData(context.Background(), uuid.New())
		if err != nil {
			t.Fatalf("failed to get data: %v", err)
		}

		if len(got.Habits) != 0 || len(got.Entries) != 0 {
			t.Errorf("expected empty data, got %+v", got)
		}
	})

	t.Run("ok, replace and get", func(t *testing.T) {
		store := newStore(t)
		userID := createOwner(t, store, "alice@example.com")

		want := testData()
		if err := store.ReplaceData(context.Background(), userID, want); err != nil {
			t.Fatalf("failed to replace data: %v", err)
		}

		got, err := store.GetData(context.Background(), userID)
		if err != nil {
			t.Fatalf("failed to get data: %v", err)
		}

		if len(got.Habits) != 2 {
			t.Fatalf("want 2 habits, got %d", len(got.Habits))
		}

		// Habits come back in position order.
		for i, h := range got.Habits {
			if h.Position != i {
				t.Errorf("expected position order, habit %d has position %d", i, h.Position)
			}
		}

		if got.Habits[0].ID != "habit-1" || got.Habits[0].NameEnvelope != "ZW52ZWxvcGUtMQ==" || got.Habits[0].Color != "#FF5733" {
			t.Errorf("habit did not round trip: %+v", got.Habits[0])
		}

		days := got.Entries["habit-1"]
		if len(days) != 2 || !days["2025-03-01"] || days["2025-03-02"] {
			t.Errorf("entries did not round trip: %+v", days)
		}
	})

	t.Run("ok, replace overwrites fully", func(t *testing.T) {
		store := newStore(t)
		userID := createOwner(t, store, "alice@example.com")

		if err := store.ReplaceData(context.Background(), userID, testData()); err != nil {
			t.Fatalf("failed to replace data: %v", err)
		}

		want := habit.StoredData{
			Habits: []habit.StoredHabit{
				{ID: "habit-3", NameEnvelope: "ZW52ZWxvcGUtMw==", Position: 0},
			},
			Entries: map[string]map[string]bool{},
		}
		if err := store.ReplaceData(context.Background(), userID, want); err != nil {
			t.Fatalf("failed to replace data: %v", err)
		}

		got, err := store.GetData(context.Background(), userID)
		if err != nil {
			t.Fatalf("failed to get data: %v", err)
		}

		if len(got.Habits) != 1 || got.Habits[0].ID != "habit-3" {
			t.Errorf("expected full replacement, got %+v", got.Habits)
		}

		if len(got.Entries["habit-1"]) != 0 {
			t.Errorf("expected old entries to be gone, got %+v", got.Entries)
		}
	})

	t.Run("ok, users are isolated", func(t *testing.T) {
		store := newStore(t)
		alice := createOwner(t, store, "alice@example.com")
		bob := createOwner(t, store, "bob@example.com")

		if err := store.ReplaceData(context.Background(), alice, testData()); err != nil {
			t.Fatalf("failed to replace data: %v", err)
		}

		got, err := store.GetData(context.Background(), bob)
		if err != nil {
			t.Fatalf("failed to get data: %v", err)
		}

		if len(got.Habits) != 0 {
			t.Errorf("expected bob to have no data, got %+v", got)
		}
	})

	t.Run("ok, deleting the user removes the data", func(t *testing.T) {
		store := newStore(t)
		userID := createOwner(t, store, "alice@example.com")

		if err := store.ReplaceData(context.Background(), userID, testData()); err != nil {
			t.Fatalf("failed to replace data: %v", err)
		}

		inTx(t, store, func(tx auth.Tx) {
			if err := tx.DeleteUser(userID); err != nil {
				t.Fatalf("failed to delete user: %v", err)
			}
		})

		got, err := store.GetData(context.Background(), userID)
		if err != nil {
			t.Fatalf("failed to get data: %v", err)
		}

		if len(got.Habits) != 0 {
			t.Errorf("expected habit data to be deleted with the user, got %+v", got)
		}
	})
}

func testSessions(t *testing.T, newStore func(t *testing.T) Store) {
	sess := websessions.StoredSession{
		ID:        "b6sh5gpkr4qnyclvxzrfuo32aem7djt1",
		Values:    "encoded-session-values",
		ExpiresAt: testTime.Add(time.Hour),
	}

	t.Run("ok, save and get", func(t *testing.T) {
		store := newStore(t)

		if err := store.SaveSession(sess); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		got, err := store.GetSession(sess.ID)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}

		if got.ID != sess.ID || got.Values != sess.Values {
			t.Errorf("session did not round trip: %+v", got)
		}
		if !got.ExpiresAt.Equal(sess.ExpiresAt) {
			t.Errorf("want expiry %v, got %v", sess.ExpiresAt, got.ExpiresAt)
		}
	})

	t.Run("ok, save overwrites", func(t *testing.T) {
		store := newStore(t)

		if err := store.SaveSession(sess); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		updated := sess
		updated.Values = "refreshed-session-values"
		updated.ExpiresAt = sess.ExpiresAt.Add(time.Hour)
		if err := store.SaveSession(updated); err != nil {
			t.Fatalf("failed to overwrite session: %v", err)
		}

		got, err := store.GetSession(sess.ID)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}

		if got.Values != updated.Values || !got.ExpiresAt.Equal(updated.ExpiresAt) {
			t.Errorf("overwrite did not win: %+v", got)
		}
	})

	t.Run("fail, get unknown session", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetSession("does-not-exist")
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ok, delete destroys the record", func(t *testing.T) {
		store := newStore(t)

		if err := store.SaveSession(sess); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		if err := store.DeleteSession(sess.ID); err != nil {
			t.Fatalf("failed to delete session: %v", err)
		}

		if _, err := store.GetSession(sess.ID); !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("ok, delete is idempotent", func(t *testing.T) {
		store := newStore(t)

		if err := store.DeleteSession(sess.ID); err != nil {
			t.Fatalf("expected deleting an absent session to succeed, got %v", err)
		}
	})
}

func ptr[T any](v T) *T {
	return &v
}
