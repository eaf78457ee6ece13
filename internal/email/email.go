package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"nxtrix.com/founders/internal/logger"
)

var ErrNotConfigured = errors.New("email configuration missing")

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Settings struct {
	Service        string // "none", "sendgrid" or "smtp"
	From           string
	SendgridAPIKey string
	// SendgridHost overrides the API host; empty uses api.sendgrid.com.
	SendgridHost string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
}

// New returns the sender selected by s.Service.
func New(s Settings) (Sender, error) {
	switch s.Service {
	case "", "none":
		return NoopSender{}, nil
	case "sendgrid":
		if s.SendgridAPIKey == "" {
			return nil, fmt.Errorf("%w: SENDGRID_API_KEY", ErrNotConfigured)
		}
		return &SendgridSender{apiKey: s.SendgridAPIKey, host: s.SendgridHost, from: s.From}, nil
	case "smtp":
		if s.SMTPHost == "" || s.SMTPPort == "" || s.SMTPUsername == "" || s.SMTPPassword == "" {
			logger.Error("SMTP configuration missing")
			return nil, fmt.Errorf("%w: SMTP", ErrNotConfigured)
		}
		return &SMTPSender{
			host:     s.SMTPHost,
			port:     s.SMTPPort,
			username: s.SMTPUsername,
			password: s.SMTPPassword,
			from:     s.From,
			sendMail: smtp.SendMail,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported email service %q", s.Service)
	}
}

// NoopSender drops every message.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, msg Message) error {
	logger.Debug("Email delivery disabled, dropping message", logger.Fields{"subject": msg.Subject})
	return nil
}

type SendgridSender struct {
	apiKey string
	host   string
	from   string
}

func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("NXTRIX", s.from))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Body))

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestRetryWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	body := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", s.from, msg.To, msg.Subject, msg.Body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, auth, s.from, []string{msg.To}, body)
}
