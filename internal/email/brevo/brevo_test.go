package brevo_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/email/brevo"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

func Test_Sender_Send(t *testing.T) {
	from, err := email.ParseAddress("no-reply@habitkeep.app")
	if err != nil {
		t.Fatalf("failed to parse from address: %v", err)
	}

	recipient, err := email.ParseAddress("alice@example.com")
	if err != nil {
		t.Fatalf("failed to parse recipient address: %v", err)
	}

	t.Run("ok", func(t *testing.T) {
		var got struct {
			APIKey string
			Body   map[string]any
		}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got.APIKey = r.Header.Get("api-key")
			if err := json.NewDecoder(r.Body).Decode(&got.Body); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"messageId":"<202503011200.123@smtp-relay.example>"}`))
		}))
		defer srv.Close()

		sender := newTestSender(t, srv)

		err := sender.Send(context.Background(), from, recipient, "Your code", "<p>hi</p>", "hi")
		if err != nil {
			t.Fatalf("failed to send: %v", err)
		}

		if got.APIKey != "test-api-key" {
			t.Errorf("want api key test-api-key, got %q", got.APIKey)
		}

		s, ok := got.Body["sender"].(map[string]any)
		if !ok || s["email"] != "no-reply@habitkeep.app" || s["name"] != "habitkeep" {
			t.Errorf("unexpected sender: %v", got.Body["sender"])
		}

		if got.Body["subject"] != "Your code" {
			t.Errorf("unexpected subject: %v", got.Body["subject"])
		}
	})

	t.Run("fail, api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
		}))
		defer srv.Close()

		sender := newTestSender(t, srv)

		err := sender.Send(context.Background(), from, recipient, "Your code", "<p>hi</p>", "hi")
		if err == nil {
			t.Fatalf("expected an error")
		}
	})
}

func newTestSender(t *testing.T, srv *httptest.Server) *brevo.Sender {
	t.Helper()

	apiURL, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}

	return brevo.NewSender(srv.Client(), brevo.Settings{
		APIURL:     apiURL,
		APIKey:     krypto.NewSecret("test-api-key"),
		SenderName: "habitkeep",
	})
}
