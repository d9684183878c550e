package inforequests

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/mail"
)

// InboundEmail is one raw message handed over by the mail provider webhook.
type InboundEmail struct {
	// EnvelopeID is the provider's delivery id, used for de-duplication of
	// webhook retries.
	EnvelopeID string
	FromName   string
	FromMail   string
	Subject    string
	Text       string
	HTML       string
	Headers    map[string]string
	Recipients []mail.Recipient
}

// Dispatcher routes inbound mail to inforequests by their unique reply
// address. Matched messages enter the undecided queue; unmatched ones are
// stored for manual triage.
type Dispatcher struct {
	service *Service
	dedup   *mail.Dedup
}

// NewDispatcher creates a dispatcher. The dedup filter may be backed by a
// nil redis client, in which case every delivery is treated as new.
func NewDispatcher(service *Service, dedup *mail.Dedup) *Dispatcher {
	return &Dispatcher{service: service, dedup: dedup}
}

// Dispatch stores the inbound message and queues it on the matching
// inforequest. Webhook retries with a known envelope id are dropped.
// Returns the stored message id, or 0 for a duplicate delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, in *InboundEmail) (int64, error) {
	if in.EnvelopeID != "" {
		fresh, err := d.dedup.IsNew(ctx, in.EnvelopeID)
		if err != nil {
			// Dedup is best effort; a broken filter must not drop mail.
			log.Warn().Err(err).Str("envelope_id", in.EnvelopeID).Msg("Dedup check failed")
		} else if !fresh {
			log.Debug().Str("envelope_id", in.EnvelopeID).Msg("Dropping duplicate delivery")
			return 0, nil
		}
	}

	s := d.service
	ir := d.matchInforequest(ctx, in.Recipients)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	recipients := make([]mail.Recipient, len(in.Recipients))
	copy(recipients, in.Recipients)
	for i := range recipients {
		recipients[i].Status = mail.StatusInbound
	}
	msg := &mail.Message{
		Direction:  mail.Inbound,
		Processed:  s.deadlines.Clock.Now(),
		FromName:   in.FromName,
		FromMail:   in.FromMail,
		Subject:    in.Subject,
		Text:       in.Text,
		HTML:       in.HTML,
		Headers:    in.Headers,
		Recipients: recipients,
	}
	if err := s.messages.CreateMessage(ctx, tx, msg); err != nil {
		return 0, err
	}

	if ir != nil {
		ie := &InforequestEmail{
			InforequestID: ir.ID,
			MessageID:     msg.ID,
			Disposition:   DispositionUndecided,
		}
		if err := s.store.InsertInforequestEmail(ctx, tx, ie); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if ir == nil {
		log.Warn().Int64("message_id", msg.ID).Str("from", in.FromMail).
			Msg("Inbound message matches no inforequest")
		return msg.ID, nil
	}

	log.Info().Int64("message_id", msg.ID).Int64("inforequest_id", ir.ID).
		Msg("Queued inbound message as undecided")
	s.notifyApplicant(ctx, ir,
		fmt.Sprintf("New message on inforequest %d", ir.ID),
		fmt.Sprintf("You received a new message from %s. Please classify it.", in.FromMail))
	return msg.ID, nil
}

// matchInforequest resolves the target inforequest by trying every envelope
// recipient against the unique address space. Closed inforequests still
// receive mail; late replies must not vanish.
func (d *Dispatcher) matchInforequest(ctx context.Context, recipients []mail.Recipient) *Inforequest {
	for _, r := range recipients {
		ir, err := d.service.store.GetInforequestByEmail(ctx, r.Mail)
		if err == nil {
			return ir
		}
		if err != ErrNotFound {
			log.Error().Err(err).Str("address", r.Mail).Msg("Address lookup failed")
		}
	}
	return nil
}
