package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

// Sender is responsible for actually sending an email.
// Both a HTML and a plain text body are provided, senders that only
// support one of the two may ignore the other.
type Sender interface {
	Send(ctx context.Context, from, recipient Address, subject, htmlBody, textBody string) error
}

// message is a named email template. Subject and bodies are rendered
// with the same data value.
type message struct {
	subject  string
	htmlBody string
	textBody string
}

// The messages habitkeep sends. Kept inline because they are short,
// transactional and share almost all their text.
var messages = map[string]message{
	"verification-code": {
		subject:  "Your habitkeep verification code",
		htmlBody: `<p>Your verification code is <strong>{{.Code}}</strong>.</p><p>It expires in {{.TTLMinutes}} minutes. If you did not request this code you can ignore this email.</p>`,
		textBody: "Your verification code is {{.Code}}.\n\nIt expires in {{.TTLMinutes}} minutes. If you did not request this code you can ignore this email.\n",
	},
	"password-reset-code": {
		subject:  "Reset your habitkeep password",
		htmlBody: `<p>Your password reset code is <strong>{{.Code}}</strong>.</p><p>It expires in {{.TTLMinutes}} minutes. If you did not request a password reset you can ignore this email.</p>`,
		textBody: "Your password reset code is {{.Code}}.\n\nIt expires in {{.TTLMinutes}} minutes. If you did not request a password reset you can ignore this email.\n",
	},
}

// Service renders named messages and hands them to a Sender.
type Service struct {
	from   Address
	sender Sender
}

func NewService(from Address, sender Sender) *Service {
	return &Service{
		from:   from,
		sender: sender,
	}
}

// Send renders the message with the given name and sends it to the recipient.
func (s *Service) Send(ctx context.Context, name string, recipient Address, data any) error {
	msg, ok := messages[name]
	if !ok {
		return fmt.Errorf("unknown email message %q", name)
	}

	subject, err := render(name+"-subject", msg.subject, data)
	if err != nil {
		return err
	}

	htmlBody, err := renderHTML(name+"-html", msg.htmlBody, data)
	if err != nil {
		return err
	}

	textBody, err := render(name+"-text", msg.textBody, data)
	if err != nil {
		return err
	}

	return s.sender.Send(ctx, s.from, recipient, strings.TrimSpace(subject), htmlBody, textBody)
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}

	return b.String(), nil
}

// renderHTML renders with html/template so data values are escaped in
// the HTML body.
func renderHTML(name, text string, data any) (string, error) {
	tmpl, err := htmltemplate.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}

	return b.String(), nil
}
