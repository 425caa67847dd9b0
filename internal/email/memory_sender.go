package email

import "context"

// MemorySender is a Sender that collects emails in memory for tests.
type MemorySender struct {
	Emails []struct {
		From      Address
		Recipient Address
		Subject   string
		HTMLBody  string
		TextBody  string
	}
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, from, recipient Address, subject, htmlBody, textBody string) error {
	s.Emails = append(s.Emails, struct {
		From      Address
		Recipient Address
		Subject   string
		HTMLBody  string
		TextBody  string
	}{
		From:      from,
		Recipient: recipient,
		Subject:   subject,
		HTMLBody:  htmlBody,
		TextBody:  textBody,
	})
	return nil
}
