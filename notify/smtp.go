package notify

import (
	"fmt"
	"net/smtp"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-steam-sessions/internal/config"
)

var _ Notifier = (*SMTPNotifier)(nil)

// SendMailFunc matches smtp.SendMail; injectable for testing.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails notifications to a configured recipient. Delivery is
// retried a few times with backoff; SMTP relays drop connections often
// enough that a single attempt loses real alerts.
type SMTPNotifier struct {
	cfg      config.SMTPConfig
	log      zerolog.Logger
	sendMail SendMailFunc
}

// SMTPNotifierOption defines a function type to modify the SMTPNotifier.
type SMTPNotifierOption func(*SMTPNotifier)

// WithSendMail sets the mail delivery function (primarily for testing)
func WithSendMail(sendMail SendMailFunc) SMTPNotifierOption {
	return func(sn *SMTPNotifier) { sn.sendMail = sendMail }
}

func NewSMTPNotifier(cfg config.SMTPConfig, logger zerolog.Logger, options ...SMTPNotifierOption) *SMTPNotifier {
	sn := &SMTPNotifier{
		cfg:      cfg,
		log:      logger.With().Str("component", "notify-smtp").Logger(),
		sendMail: smtp.SendMail,
	}
	for _, opt := range options {
		opt(sn)
	}
	return sn
}

func (sn *SMTPNotifier) Notify(title, message string) error {
	addr := fmt.Sprintf("%s:%s", sn.cfg.Host, sn.cfg.Port)
	auth := smtp.PlainAuth("", sn.cfg.Account, sn.cfg.Password, sn.cfg.Host)
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		sn.cfg.Account, sn.cfg.Recipient, title, message)

	err := retry.Do(
		func() error {
			return sn.sendMail(addr, auth, sn.cfg.Account, []string{sn.cfg.Recipient}, []byte(body))
		},
		retry.Attempts(3),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		sn.log.Error().Err(err).Str("title", title).Msg("Failed to deliver notification email")
		return errors.Wrap(err, "[SMTPNotifier.Notify] smtp.SendMail")
	}

	sn.log.Info().Str("title", title).Str("recipient", sn.cfg.Recipient).Msg("Notification email sent")
	return nil
}
