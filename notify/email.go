package notify

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	TLS      bool
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.Port != "" && c.User != ""
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// EmailChannel sends events through SMTP. When SMTP is not configured every
// send is skipped with a warning.
type EmailChannel struct {
	cfg    SMTPConfig
	send   sendFunc
	logger *log.Entry
}

func NewEmailChannel(cfg SMTPConfig, logger *log.Entry) *EmailChannel {
	if logger == nil {
		logger = log.WithField("component", "notify")
	}
	send := smtp.SendMail
	if cfg.TLS {
		send = smtp.SendMailTLS
	}
	return &EmailChannel{cfg: cfg, send: send, logger: logger}
}

func (*EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, recipient string, ev Event) error {
	if !c.cfg.configured() {
		c.logger.WithField("recipient", recipient).Warn("email not sent: smtp is not configured")
		return nil
	}
	if !strings.Contains(recipient, "@") {
		return errors.Errorf("recipient %q is not an email address", recipient)
	}

	from := c.cfg.From
	if from == "" {
		from = c.cfg.User
	}
	auth := sasl.NewPlainClient("", c.cfg.User, c.cfg.Password)
	msg := strings.NewReader(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s\r\n",
		from, recipient, ev.Subject, ev.Body))

	err := c.send(net.JoinHostPort(c.cfg.Host, c.cfg.Port), auth, from, []string{recipient}, msg)
	return errors.Wrapf(err, "smtp send to %s", recipient)
}
