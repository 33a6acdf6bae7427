// Package notify delivers the mail-style notifications raised when a point of
// interest is deleted.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"cityinfo/internal/domain"
)

var _ domain.Notifier = Log{}

// Log writes each notification to the logger instead of sending it.
type Log struct {
	L        zerolog.Logger
	From, To string
}

func (n Log) Notify(ctx context.Context, subject, body string) error {
	n.L.Info().
		Str("from", n.From).
		Str("to", n.To).
		Str("subject", subject).
		Str("body", body).
		Msg("mail sent")
	return nil
}
