package app

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
)

// Mailer sends fire-and-forget transactional email. Callers never treat a
// send failure as fatal to the request.
type Mailer interface {
	Send(to, subject, body string) error
}

// NewMailer returns the SMTP mailer, or a log-only fallback when SMTP is not
// configured (local development).
func NewMailer(sc config.SMTPConfig) Mailer {
	if sc.Host == "" {
		log.Println("SMTP_HOST not set, emails will be logged only")
		return logMailer{}
	}
	return &smtpMailer{cfg: sc}
}

type smtpMailer struct {
	cfg config.SMTPConfig
}

func (m *smtpMailer) Send(to, subject, body string) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg))
}

type logMailer struct{}

func (logMailer) Send(to, subject, body string) error {
	log.Printf("mail (not sent) to=%s subject=%q", to, subject)
	return nil
}

// sendMailAsync fires an email off the request path and logs failures.
func sendMailAsync(to, subject, body string) {
	go func() {
		if err := mail.Send(to, subject, body); err != nil {
			log.Printf("mail send failed to=%s subject=%q err=%v", to, subject, err)
		}
	}()
}
