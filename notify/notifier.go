// Package notify delivers human-readable alerts when an account loses its
// session and every re-authentication path has been exhausted.
package notify

import "github.com/rs/zerolog"

// Notifier is the external notification sink.
type Notifier interface {
	// Notify delivers a message. Delivery failures are the implementation's
	// problem; callers never block their own recovery on a notification.
	Notify(title, message string) error
}

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log. It is the fallback sink when
// no delivery channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "notify").Logger()}
}

func (ln *LogNotifier) Notify(title, message string) error {
	ln.log.Warn().Str("title", title).Msg(message)
	return nil
}
