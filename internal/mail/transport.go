package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogTransport is the delivery backend for installations without a mail
// provider: it records the delivery in the log and marks every recipient
// sent, so the rest of the pipeline behaves as in production. Real
// deployments plug a provider-backed Transport in its place.
type LogTransport struct {
	store *Storage
}

// NewLogTransport creates a log-only transport.
func NewLogTransport(store *Storage) *LogTransport {
	return &LogTransport{store: store}
}

// Send logs the message and marks its recipients sent.
func (t *LogTransport) Send(ctx context.Context, msg *Message, attachments []Attachment) error {
	for i := range msg.Recipients {
		r := &msg.Recipients[i]
		log.Info().
			Int64("message_id", msg.ID).
			Str("from", msg.FromMail).
			Str("to", r.FormatAddress()).
			Str("subject", msg.Subject).
			Int("attachments", len(attachments)).
			Msg("Outbound mail (log transport)")
		if r.ID != 0 && t.store != nil {
			if err := t.store.UpdateRecipientStatus(ctx, r.ID, StatusSent); err != nil {
				return err
			}
		}
	}
	return nil
}
