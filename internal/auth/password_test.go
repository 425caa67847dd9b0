package auth_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

func Test_ParsePassword(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		for _, raw := range []string{
			"12345678",
			"a longer passphrase with spaces",
			strings.Repeat("x", 512),
		} {
			if _, err := auth.ParsePassword(raw); err != nil {
				t.Errorf("failed to parse %d byte password: %v", len(raw), err)
			}
		}
	})

	t.Run("fail", func(t *testing.T) {
		for _, raw := range []string{
			"",
			"1234567",
			strings.Repeat("x", 513),
		} {
			if _, err := auth.ParsePassword(raw); !errors.Is(err, auth.ErrInvalidPassword) {
				t.Errorf("expected ErrInvalidPassword for %d byte password, got %v", len(raw), err)
			}
		}
	})
}

func Test_Password_HashMatch(t *testing.T) {
	pwd, err := auth.ParsePassword("reallyStrongPassword1")
	if err != nil {
		t.Fatalf("failed to parse password: %v", err)
	}

	hash, err := pwd.Hash()
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	if !pwd.Match(hash) {
		t.Errorf("expected password to match its own hash")
	}

	other, err := auth.ParsePassword("definitelyNotThePassword")
	if err != nil {
		t.Fatalf("failed to parse password: %v", err)
	}

	if other.Match(hash) {
		t.Errorf("expected other password to not match hash")
	}
}

func Test_Password_IsZero(t *testing.T) {
	var zero auth.Password
	if !zero.IsZero() {
		t.Errorf("expected zero value to report IsZero")
	}

	pwd, err := auth.ParsePassword("reallyStrongPassword1")
	if err != nil {
		t.Fatalf("failed to parse password: %v", err)
	}

	if pwd.IsZero() {
		t.Errorf("expected parsed password to not report IsZero")
	}
}

func Test_Password_NoAccidentalExposure(t *testing.T) {
	const plain = "reallyStrongPassword1"

	pwd, err := auth.ParsePassword(plain)
	if err != nil {
		t.Fatalf("failed to parse password: %v", err)
	}

	t.Run("via fmt", func(t *testing.T) {
		for _, verb := range []string{"%s", "%v", "%+v", "%#v", "%q"} {
			got := fmt.Sprintf(verb, pwd)
			if strings.Contains(got, plain) {
				t.Errorf("verb %s exposed the plaintext password", verb)
			}
			if !strings.Contains(got, krypto.SecretMarker) {
				t.Errorf("verb %s did not output the secret marker, got %q", verb, got)
			}
		}
	})

	t.Run("via json", func(t *testing.T) {
		got, err := json.Marshal(pwd)
		if err != nil {
			t.Fatalf("failed to marshal password: %v", err)
		}

		if strings.Contains(string(got), plain) {
			t.Errorf("json marshal exposed the plaintext password")
		}
	})
}

func Test_Password_UnmarshalText(t *testing.T) {
	var pwd auth.Password
	if err := pwd.UnmarshalText([]byte("reallyStrongPassword1")); err != nil {
		t.Fatalf("failed to unmarshal password: %v", err)
	}

	if pwd.IsZero() {
		t.Errorf("expected password to be set")
	}

	if err := pwd.UnmarshalText([]byte("short")); !errors.Is(err, auth.ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
}
