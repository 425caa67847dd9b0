package email_test

import (
	"context"
	"strings"
	"testing"

	"github.com/habitkeep/habitkeep/internal/email"
)

type codeData struct {
	Code       string
	TTLMinutes int
}

func Test_Service_Send(t *testing.T) {
	from, err := email.ParseAddress("no-reply@habitkeep.app")
	if err != nil {
		t.Fatalf("failed to parse from address: %v", err)
	}

	recipient, err := email.ParseAddress("alice@example.com")
	if err != nil {
		t.Fatalf("failed to parse recipient address: %v", err)
	}

	data := codeData{Code: "042137", TTLMinutes: 15}

	t.Run("ok, renders known messages", func(t *testing.T) {
		for _, name := range []string{"verification-code", "password-reset-code"} {
			t.Run(name, func(t *testing.T) {
				sender := email.NewMemorySender()
				svc := email.NewService(from, sender)

				if err := svc.Send(context.Background(), name, recipient, data); err != nil {
					t.Fatalf("failed to send: %v", err)
				}

				if len(sender.Emails) != 1 {
					t.Fatalf("want 1 email, got %d", len(sender.Emails))
				}

				sent := sender.Emails[0]
				if sent.From != from || sent.Recipient != recipient {
					t.Errorf("unexpected addresses: %+v", sent)
				}

				if sent.Subject == "" {
					t.Errorf("expected a subject")
				}

				// The code must appear in both bodies, leading zero included.
				if !strings.Contains(sent.HTMLBody, "042137") {
					t.Errorf("html body does not contain the code: %q", sent.HTMLBody)
				}
				if !strings.Contains(sent.TextBody, "042137") {
					t.Errorf("text body does not contain the code: %q", sent.TextBody)
				}

				if !strings.Contains(sent.TextBody, "15 minutes") {
					t.Errorf("text body does not mention the expiry: %q", sent.TextBody)
				}
			})
		}
	})

	t.Run("ok, html body escapes data", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(from, sender)

		hostile := codeData{Code: `<b>042137</b>`, TTLMinutes: 15}
		if err := svc.Send(context.Background(), "verification-code", recipient, hostile); err != nil {
			t.Fatalf("failed to send: %v", err)
		}

		sent := sender.Emails[0]
		if strings.Contains(sent.HTMLBody, "<b>") {
			t.Errorf("html body contains unescaped markup: %q", sent.HTMLBody)
		}
		if !strings.Contains(sent.HTMLBody, "&lt;b&gt;") {
			t.Errorf("html body does not contain the escaped value: %q", sent.HTMLBody)
		}

		// The plain text body is not HTML and stays verbatim.
		if !strings.Contains(sent.TextBody, "<b>042137</b>") {
			t.Errorf("text body should be verbatim: %q", sent.TextBody)
		}
	})

	t.Run("fail, unknown message", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(from, sender)

		if err := svc.Send(context.Background(), "does-not-exist", recipient, data); err == nil {
			t.Fatalf("expected an error for an unknown message")
		}

		if len(sender.Emails) != 0 {
			t.Errorf("expected no email to be sent")
		}
	})
}
