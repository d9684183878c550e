package inforequests

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/mail"
	"github.com/infodesk/internal/workdays"
)

const (
	// UndecidedReminderAge is the age of the oldest undecided message, in
	// working days, after which the applicant is nudged to classify it.
	UndecidedReminderAge = 5

	// ApplicantReminderMargin is the remaining working days at which the
	// applicant is reminded of an expiring deadline.
	ApplicantReminderMargin = 2

	// CloseMargin is the number of working days past its last deadline after
	// which a dormant inforequest is closed.
	CloseMargin = 100
)

// RemindUndecided nudges applicants sitting on an undecided queue. A
// reminder fires when the oldest undecided message is at least five working
// days old and nothing newer arrived since the last reminder. Returns the
// number of reminders sent.
func (s *Service) RemindUndecided(ctx context.Context) (int, error) {
	with := true
	ids, err := s.store.ListOpenIDs(ctx, &with)
	if err != nil {
		return 0, err
	}

	today := s.deadlines.Clock.Today()
	sent := 0
	for _, id := range ids {
		ir, err := s.store.GetInforequest(ctx, id)
		if err != nil {
			return sent, err
		}
		oldest, err := s.store.OldestUndecided(ctx, nil, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return sent, err
		}
		if workdays.Between(oldest.Processed, today, s.deadlines.Holidays) < UndecidedReminderAge {
			continue
		}
		newest, err := s.store.NewestUndecided(ctx, id)
		if err != nil {
			return sent, err
		}
		// One reminder per arrival: a new undecided message re-arms it.
		if !ir.LastUndecidedEmailReminder.IsZero() &&
			!ir.LastUndecidedEmailReminder.Before(newest.Processed) {
			continue
		}

		s.notifyApplicant(ctx, ir,
			fmt.Sprintf("Unclassified messages on inforequest %d", ir.ID),
			"Your inforequest has messages waiting for classification. Please decide what they are.")
		if err := s.store.SetUndecidedReminder(ctx, ir.ID, s.deadlines.Clock.Now()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// RemindObligeeDeadlines notifies applicants of missed obligee deadlines so
// they can appeal or grant an extension. Inforequests with undecided mail
// are skipped; the queue has to be resolved first. A granted extension moves
// the deadline date forward and re-arms the reminder.
func (s *Service) RemindObligeeDeadlines(ctx context.Context) (int, error) {
	return s.remindDeadlines(ctx, func(ir *Inforequest, a *Action) (string, bool) {
		if !a.HasObligeeDeadline() || !s.deadlines.Missed(a) {
			return "", false
		}
		date, _ := s.deadlines.Date(a)
		if !a.LastDeadlineReminder.IsZero() && !a.LastDeadlineReminder.Before(date) {
			return "", false
		}
		return fmt.Sprintf("The obligee missed its deadline on inforequest %d. "+
			"You may appeal or grant an extension.", ir.ID), true
	})
}

// RemindApplicantDeadlines warns applicants once when two or fewer working
// days remain on a deadline expecting them to act.
func (s *Service) RemindApplicantDeadlines(ctx context.Context) (int, error) {
	return s.remindDeadlines(ctx, func(ir *Inforequest, a *Action) (string, bool) {
		if !a.HasApplicantDeadline() || !a.LastDeadlineReminder.IsZero() {
			return "", false
		}
		remaining, ok := s.deadlines.Remaining(a)
		if !ok || remaining < 0 || remaining > ApplicantReminderMargin {
			return "", false
		}
		return fmt.Sprintf("A deadline on inforequest %d expires in %d working days.",
			ir.ID, remaining), true
	})
}

func (s *Service) remindDeadlines(ctx context.Context, check func(*Inforequest, *Action) (string, bool)) (int, error) {
	without := false
	ids, err := s.store.ListOpenIDs(ctx, &without)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range ids {
		ir, err := s.store.GetInforequest(ctx, id)
		if err != nil {
			return sent, err
		}
		for _, b := range ir.Branches {
			last := b.LastAction()
			if last == nil {
				continue
			}
			body, ok := check(ir, last)
			if !ok {
				continue
			}
			s.notifyApplicant(ctx, ir, fmt.Sprintf("Deadline on inforequest %d", ir.ID), body)
			if err := s.store.SetActionReminder(ctx, last.ID, s.deadlines.Clock.Now()); err != nil {
				return sent, err
			}
			sent++
		}
	}
	return sent, nil
}

// CloseExpired closes dormant inforequests: every branch's last deadline
// (or, for deadline-free actions, the effective date) lies more than a
// hundred working days in the past. Pending expirations are materialized
// before closing so the record is complete. Returns the number closed.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	ids, err := s.store.ListOpenIDs(ctx, nil)
	if err != nil {
		return 0, err
	}

	today := s.deadlines.Clock.Today()
	closed := 0
	for _, id := range ids {
		ir, err := s.store.GetInforequest(ctx, id)
		if err != nil {
			return closed, err
		}
		dormant := true
		for _, b := range ir.Branches {
			last := b.LastAction()
			if last == nil {
				dormant = false
				break
			}
			base, ok := s.deadlines.Date(last)
			if !ok {
				base = last.EffectiveDate
			}
			if workdays.Between(base, today, s.deadlines.Holidays) <= CloseMargin {
				dormant = false
				break
			}
		}
		if !dormant {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return closed, fmt.Errorf("begin tx: %w", err)
		}
		for _, b := range ir.Branches {
			if exp := b.ExpirationIfExpired(s.deadlines); exp != nil {
				if err := s.store.InsertAction(ctx, tx, exp); err != nil {
					tx.Rollback()
					return closed, err
				}
			}
		}
		if err := s.store.SetClosed(ctx, tx, ir.ID); err != nil {
			tx.Rollback()
			return closed, err
		}
		if err := tx.Commit(); err != nil {
			return closed, fmt.Errorf("commit: %w", err)
		}
		log.Info().Int64("inforequest_id", ir.ID).Msg("Closed dormant inforequest")
		closed++
	}
	return closed, nil
}

// notifyApplicant sends a site notification email. Notification failures
// are logged, never propagated; the triggering operation already succeeded.
func (s *Service) notifyApplicant(ctx context.Context, ir *Inforequest, subject, body string) {
	if ir.ApplicantEmail == "" {
		return
	}
	msg := &mail.Message{
		Direction: mail.Outbound,
		Processed: s.deadlines.Clock.Now(),
		FromMail:  s.notifyFrom,
		Subject:   subject,
		Text:      body,
		Recipients: []mail.Recipient{{
			Name:   ir.ApplicantName,
			Mail:   ir.ApplicantEmail,
			Kind:   mail.KindTo,
			Status: mail.StatusQueued,
		}},
	}
	if err := s.messages.CreateMessage(ctx, nil, msg); err != nil {
		log.Error().Err(err).Int64("inforequest_id", ir.ID).Msg("Failed to store notification")
		return
	}
	if err := s.transport.Send(ctx, msg, nil); err != nil {
		log.Error().Err(err).Int64("inforequest_id", ir.ID).Msg("Failed to send notification")
	}
}
