// Package brevo sends emails using the Brevo transactional email API.
package brevo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

// Settings contains the settings for the Brevo API.
type Settings struct {
	APIURL     *url.URL
	APIKey     krypto.Secret
	SenderName string
}

// Sender is an email sender that sends emails using the Brevo API.
type Sender struct {
	client   *http.Client
	settings Settings
}

// NewSender creates a new sender.
func NewSender(client *http.Client, s Settings) *Sender {
	return &Sender{
		client:   client,
		settings: s,
	}
}

type party struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type emailJSON struct {
	Sender      party   `json:"sender"`
	To          []party `json:"to"`
	Subject     string  `json:"subject"`
	HTMLContent string  `json:"htmlContent"`
	TextContent string  `json:"textContent,omitempty"`
}

type response struct {
	MessageID string `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Send sends an email using the Brevo API.
func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, htmlBody, textBody string) error {
	data := emailJSON{
		Sender: party{
			Name:  s.settings.SenderName,
			Email: string(from),
		},
		To: []party{
			{Email: string(recipient)},
		},
		Subject:     subject,
		HTMLContent: htmlBody,
		TextContent: textBody,
	}

	var b bytes.Buffer
	err := json.NewEncoder(&b).Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode email json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.settings.APIURL.String(), &b)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", string(s.settings.APIKey.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close()

	var res response
	err = json.NewDecoder(resp.Body).Decode(&res)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request did not succeed, status code %d: %s %s", resp.StatusCode, res.Code, res.Message)
	}

	return nil
}
