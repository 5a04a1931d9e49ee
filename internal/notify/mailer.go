package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"net/smtp"

	"github.com/primepix/orderflow/internal/orders"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`
<h2>Thank you for your order, {{.CustomerName}}!</h2>
<p>We've received your order for <strong>{{.Package}}</strong>.</p>
<p><strong>Rush Service:</strong> {{if .Rush}}Yes (24-hour turnaround){{else}}No (Standard delivery){{end}}</p>
<p>We'll begin processing your AI-generated images and will send them to this email within the specified timeframe.</p>
<p>Remember: You have up to 2 free edits to ensure your satisfaction!</p>
<hr>
<p><em>Questions? Reply to this email or contact us at hello@primepixai.com</em></p>
`))

// SMTPMailer sends the order confirmation email. Only the worker uses it;
// the API path never blocks on SMTP.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string

	// sendFunc is swapped in tests.
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer returns a mailer for the given SMTP endpoint. from may be a
// display-name address like "PrimePix AI <hello@primepixai.com>".
func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		sendFunc: smtp.SendMail,
	}
}

// SendConfirmation renders and delivers the confirmation email for an order.
func (m *SMTPMailer) SendConfirmation(ctx context.Context, o orders.Order) error {
	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, o); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	envelopeFrom := m.from
	if addr, err := mail.ParseAddress(m.from); err == nil {
		envelopeFrom = addr.Address
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", o.CustomerEmail)
	fmt.Fprintf(&msg, "Subject: Order Confirmed - %s\r\n", o.Package)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	addr := m.host + ":" + m.port
	if err := m.sendFunc(addr, auth, envelopeFrom, []string{o.CustomerEmail}, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
