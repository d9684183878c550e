package inforequests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/attachments"
	"github.com/infodesk/internal/mail"
	"github.com/infodesk/internal/obligees"
	"github.com/infodesk/internal/workdays"
)

// Service orchestrates inforequest operations: creation, appending actions,
// classification of inbound mail and the periodic sweeps. All multi-row
// mutations run in a single transaction.
type Service struct {
	db          *sql.DB
	store       *Storage
	obligees    *obligees.Storage
	messages    *mail.Storage
	transport   mail.Transport
	deadlines   *Deadlines
	attachments *attachments.Storage

	addressTemplate string
	notifyFrom      string
	rnd             *rand.Rand
}

// NewService creates the service. The rand source is injectable so address
// allocation is reproducible in tests; pass nil for a time-seeded one.
func NewService(db *sql.DB, ob *obligees.Storage, ms *mail.Storage,
	transport mail.Transport, d *Deadlines,
	addressTemplate, notifyFrom string, rnd *rand.Rand) *Service {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		db:              db,
		store:           NewStorage(db),
		obligees:        ob,
		messages:        ms,
		transport:       transport,
		deadlines:       d,
		attachments:     attachments.NewStorage(db),
		addressTemplate: addressTemplate,
		notifyFrom:      notifyFrom,
		rnd:             rnd,
	}
}

// Store exposes the storage layer for read paths that need no orchestration.
func (s *Service) Store() *Storage { return s.store }

// Deadlines exposes the deadline calculator.
func (s *Service) Deadlines() *Deadlines { return s.deadlines }

// CreateInforequest submits a new inforequest to the given obligee. It
// freezes the applicant contact data, allocates the unique reply address,
// seeds the main branch with its REQUEST action, records the outbound
// message and hands it to the transport.
func (s *Service) CreateInforequest(ctx context.Context, applicant Applicant,
	obligeeID int64, subject, content string) (*Inforequest, error) {

	if subject == "" || content == "" {
		return nil, fmt.Errorf("%w: subject and content are required", ErrValidation)
	}
	obligee, err := s.obligees.GetByID(ctx, obligeeID)
	if err != nil {
		return nil, err
	}
	if obligee.Status == obligees.StatusDissolved {
		return nil, ErrDissolved
	}
	recipients := obligeeRecipients(obligee)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: obligee has no valid email address", ErrValidation)
	}
	snapshot, err := s.obligees.LatestSnapshot(ctx, obligeeID)
	if err != nil {
		return nil, err
	}

	today := s.deadlines.Clock.Today()
	var ir *Inforequest
	var msg *mail.Message

	// Address allocation grows the token by one letter per collision. Each
	// attempt needs a fresh transaction because the unique violation aborts
	// the current one.
	for length := MinTokenLength; ; length++ {
		if length > MaxTokenLength {
			return nil, ErrAddressExhausted
		}
		address := FormatAddress(s.addressTemplate, RandomReadableToken(s.rnd, length))

		ir = &Inforequest{
			ApplicantID:     applicant.ID,
			ApplicantName:   applicant.FullName,
			ApplicantStreet: applicant.Street,
			ApplicantCity:   applicant.City,
			ApplicantZip:    applicant.Zip,
			ApplicantEmail:  applicant.Email,
			UniqueEmail:     address,
			SubmissionDate:  today,
		}

		msg, err = s.createWithAddress(ctx, ir, snapshot, recipients, subject, content, today)
		if errors.Is(err, errUniqueEmailTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	if err := s.transport.Send(ctx, msg, nil); err != nil {
		log.Error().Err(err).Int64("inforequest_id", ir.ID).Msg("Failed to send request email")
	}
	log.Info().Int64("inforequest_id", ir.ID).Str("unique_email", ir.UniqueEmail).
		Msg("Created inforequest")
	return s.store.GetInforequest(ctx, ir.ID)
}

func (s *Service) createWithAddress(ctx context.Context, ir *Inforequest,
	snapshot *obligees.HistoricalObligee, recipients []mail.Recipient,
	subject, content string, today time.Time) (*mail.Message, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.InsertInforequest(ctx, tx, ir); err != nil {
		return nil, err
	}

	branch := &Branch{
		InforequestID:       ir.ID,
		ObligeeID:           snapshot.ObligeeID,
		HistoricalObligeeID: snapshot.ID,
	}
	if err := s.store.InsertBranch(ctx, tx, branch); err != nil {
		return nil, err
	}

	msg := &mail.Message{
		Direction:  mail.Outbound,
		Processed:  s.deadlines.Clock.Now(),
		FromName:   ir.ApplicantName,
		FromMail:   ir.UniqueEmail,
		Subject:    subject,
		Text:       content,
		Recipients: recipients,
	}
	if err := s.messages.CreateMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	ie := &InforequestEmail{
		InforequestID: ir.ID,
		MessageID:     msg.ID,
		Disposition:   DispositionApplicantAction,
	}
	if err := s.store.InsertInforequestEmail(ctx, tx, ie); err != nil {
		return nil, err
	}

	action := &Action{
		BranchID:      branch.ID,
		EmailID:       msg.ID,
		Type:          TypeRequest,
		Subject:       subject,
		Content:       content,
		ContentType:   ContentPlainText,
		EffectiveDate: today,
	}
	applyDefaultDeadline(action)
	if err := s.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

func applyDefaultDeadline(a *Action) {
	if dl, ok := DefaultDeadline(a.Type, a.DisclosureLevel); ok {
		a.Deadline = dl
		a.HasDeadline = true
	}
}

func obligeeRecipients(o *obligees.Obligee) []mail.Recipient {
	var res []mail.Recipient
	for _, addr := range o.EmailsParsed() {
		res = append(res, mail.Recipient{
			Name:   addr.Name,
			Mail:   addr.Mail,
			Kind:   mail.KindTo,
			Status: mail.StatusQueued,
		})
	}
	return res
}

// AddClarificationResponse appends the applicant's answer to a pending
// clarification request and sends it to the obligee by email.
func (s *Service) AddClarificationResponse(ctx context.Context, applicantID,
	inforequestID, branchID int64, subject, content string) (*Action, error) {

	ir, branch, err := s.ownedBranch(ctx, inforequestID, applicantID, branchID)
	if err != nil {
		return nil, err
	}
	if !branch.CanAddClarificationResponse(s.deadlines) {
		return nil, ErrProtocol
	}
	obligee, err := s.obligees.GetByID(ctx, branch.ObligeeID)
	if err != nil {
		return nil, err
	}
	recipients := obligeeRecipients(obligee)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: obligee has no valid email address", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	msg := &mail.Message{
		Direction:  mail.Outbound,
		Processed:  s.deadlines.Clock.Now(),
		FromName:   ir.ApplicantName,
		FromMail:   ir.UniqueEmail,
		Subject:    subject,
		Text:       content,
		Recipients: recipients,
	}
	if err := s.messages.CreateMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	ie := &InforequestEmail{
		InforequestID: ir.ID,
		MessageID:     msg.ID,
		Disposition:   DispositionApplicantAction,
	}
	if err := s.store.InsertInforequestEmail(ctx, tx, ie); err != nil {
		return nil, err
	}

	action := &Action{
		BranchID:      branch.ID,
		EmailID:       msg.ID,
		Type:          TypeClarificationResponse,
		Subject:       subject,
		Content:       content,
		ContentType:   ContentPlainText,
		EffectiveDate: s.deadlines.Clock.Today(),
	}
	applyDefaultDeadline(action)
	if err := s.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if err := s.transport.Send(ctx, msg, nil); err != nil {
		log.Error().Err(err).Int64("action_id", action.ID).Msg("Failed to send clarification response")
	}
	return action, nil
}

// AddAppeal appends an appeal to the branch. Appeals go by paper, so no
// message is created. When the branch's last obligee deadline already
// expired, the implicit expiration action is inserted first and the appeal
// follows it.
func (s *Service) AddAppeal(ctx context.Context, applicantID, inforequestID,
	branchID int64, subject, content string) (*Action, error) {

	_, branch, err := s.ownedBranch(ctx, inforequestID, applicantID, branchID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if exp := branch.ExpirationIfExpired(s.deadlines); exp != nil {
		if err := s.store.InsertAction(ctx, tx, exp); err != nil {
			return nil, err
		}
		branch.Actions = append(branch.Actions, exp)
		branch.SortActions()
	}
	if !branch.CanAddAppeal(s.deadlines) {
		return nil, ErrProtocol
	}

	action := &Action{
		BranchID:      branch.ID,
		Type:          TypeAppeal,
		Subject:       subject,
		Content:       content,
		ContentType:   ContentHTML,
		EffectiveDate: s.deadlines.Clock.Today(),
	}
	applyDefaultDeadline(action)
	if err := s.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return action, nil
}

// ObligeeActionParams describes one obligee action to record, either from a
// classified email or from paper correspondence.
type ObligeeActionParams struct {
	InforequestID int64
	BranchID      int64
	Type          ActionType
	Subject       string
	Content       string
	EffectiveDate time.Time
	FileNumber    string
	// Deadline overrides the statutory default when non-nil.
	Deadline        *int
	DisclosureLevel DisclosureLevel
	RefusalReasons  []RefusalReason
	// AdvancedTo lists obligee ids to advance the request to; required for
	// ADVANCEMENT, forbidden otherwise.
	AdvancedTo []int64
	// MessageID ties the action to the inbound message being classified;
	// zero for paper actions.
	MessageID int64
}

// AddObligeeAction records an obligee action. When MessageID is set the
// message must still be the oldest undecided one of the inforequest; the
// whole operation runs in one transaction so a racing classification makes
// exactly one of the submissions win.
func (s *Service) AddObligeeAction(ctx context.Context, applicantID int64,
	p ObligeeActionParams) (*Action, error) {

	ir, branch, err := s.ownedBranch(ctx, p.InforequestID, applicantID, p.BranchID)
	if err != nil {
		return nil, err
	}
	if !p.Type.IsObligeeAction() {
		return nil, fmt.Errorf("%w: %s is not an obligee action", ErrValidation, p.Type)
	}
	if !branch.CanAdd(s.deadlines, p.Type) {
		return nil, ErrProtocol
	}
	if err := s.validateObligeeDate(branch, p.EffectiveDate); err != nil {
		return nil, err
	}
	if err := validateTypeSpecifics(&p); err != nil {
		return nil, err
	}

	var advanced []*obligees.HistoricalObligee
	if p.Type == TypeAdvancement {
		advanced, err = s.resolveAdvancedTo(ctx, branch, p.AdvancedTo)
		if err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if p.MessageID != 0 {
		oldest, err := s.store.OldestUndecided(ctx, tx, ir.ID)
		if err != nil {
			return nil, err
		}
		if oldest.MessageID != p.MessageID {
			return nil, ErrNotOldest
		}
		if err := s.store.SetDisposition(ctx, tx, ir.ID, p.MessageID, DispositionObligeeAction); err != nil {
			return nil, err
		}
	}

	action := &Action{
		BranchID:        branch.ID,
		EmailID:         p.MessageID,
		Type:            p.Type,
		Subject:         p.Subject,
		Content:         p.Content,
		ContentType:     ContentPlainText,
		EffectiveDate:   workdays.DateOf(p.EffectiveDate),
		FileNumber:      p.FileNumber,
		DisclosureLevel: p.DisclosureLevel,
		RefusalReasons:  p.RefusalReasons,
	}
	if p.Deadline != nil {
		if *p.Deadline < 0 {
			return nil, fmt.Errorf("%w: deadline must not be negative", ErrValidation)
		}
		action.Deadline = *p.Deadline
		action.HasDeadline = true
	} else {
		applyDefaultDeadline(action)
	}
	if err := s.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}

	for _, snap := range advanced {
		sub := &Branch{
			InforequestID:       ir.ID,
			ObligeeID:           snap.ObligeeID,
			HistoricalObligeeID: snap.ID,
			AdvancedByID:        action.ID,
		}
		if err := s.store.InsertBranch(ctx, tx, sub); err != nil {
			return nil, err
		}
		seed := &Action{
			BranchID:      sub.ID,
			Type:          TypeAdvancedRequest,
			ContentType:   ContentPlainText,
			EffectiveDate: action.EffectiveDate,
		}
		applyDefaultDeadline(seed)
		if err := s.store.InsertAction(ctx, tx, seed); err != nil {
			return nil, err
		}
	}

	if err := s.commitDraft(ctx, tx, ir.ID, action); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	log.Info().Int64("inforequest_id", ir.ID).Int64("branch_id", branch.ID).
		Stringer("type", p.Type).Msg("Recorded obligee action")
	return action, nil
}

func validateTypeSpecifics(p *ObligeeActionParams) error {
	// A refusal may come without reasons; the decision is appealable for
	// that alone, so an empty reason list is recorded as submitted.
	switch p.Type {
	case TypeDisclosure:
		if p.DisclosureLevel == 0 {
			return fmt.Errorf("%w: disclosure requires a disclosure level", ErrValidation)
		}
	case TypeAdvancement, TypeReversion, TypeRemandment:
		// These may disclose part of the information along the way, so an
		// optional level is allowed.
	default:
		if p.DisclosureLevel != 0 {
			return fmt.Errorf("%w: disclosure level only applies to disclosing types", ErrValidation)
		}
	}
	if p.Type != TypeAdvancement && len(p.AdvancedTo) != 0 {
		return fmt.Errorf("%w: advanced obligees only apply to advancements", ErrValidation)
	}
	if p.Type == TypeAdvancement && len(p.AdvancedTo) == 0 {
		return fmt.Errorf("%w: advancement requires at least one obligee", ErrValidation)
	}
	if len(p.AdvancedTo) > MaxAdvancedTo {
		return fmt.Errorf("%w: advancement allows at most %d obligees", ErrValidation, MaxAdvancedTo)
	}
	if p.Deadline != nil {
		if _, ok := DefaultDeadline(p.Type, p.DisclosureLevel); !ok {
			return fmt.Errorf("%w: %s sets no deadline", ErrValidation, p.Type)
		}
	}
	return nil
}

// validateObligeeDate enforces the effective date window: on or after the
// branch's last action, not in the future, and at most one month old.
func (s *Service) validateObligeeDate(b *Branch, date time.Time) error {
	if date.IsZero() {
		return fmt.Errorf("%w: effective date is required", ErrValidation)
	}
	d := workdays.DateOf(date)
	today := s.deadlines.Clock.Today()
	if last := b.LastAction(); last != nil && d.Before(last.EffectiveDate) {
		return fmt.Errorf("%w: effective date is before the previous action", ErrValidation)
	}
	if d.After(today) {
		return fmt.Errorf("%w: effective date is in the future", ErrValidation)
	}
	if d.Before(today.AddDate(0, -1, 0)) {
		return fmt.Errorf("%w: effective date is more than one month old", ErrValidation)
	}
	return nil
}

func (s *Service) resolveAdvancedTo(ctx context.Context, b *Branch, ids []int64) ([]*obligees.HistoricalObligee, error) {
	seen := map[int64]bool{b.ObligeeID: true}
	var res []*obligees.HistoricalObligee
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate advanced obligee", ErrValidation)
		}
		seen[id] = true
		o, err := s.obligees.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.Status == obligees.StatusDissolved {
			return nil, ErrDissolved
		}
		snap, err := s.obligees.LatestSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, snap)
	}
	return res, nil
}

// ClassifyUnrelated marks the oldest undecided message as off topic.
func (s *Service) ClassifyUnrelated(ctx context.Context, applicantID, inforequestID, messageID int64) error {
	return s.classify(ctx, applicantID, inforequestID, messageID, DispositionUnrelated)
}

// ClassifyUnknown marks the oldest undecided message as unplaceable.
func (s *Service) ClassifyUnknown(ctx context.Context, applicantID, inforequestID, messageID int64) error {
	return s.classify(ctx, applicantID, inforequestID, messageID, DispositionUnknown)
}

func (s *Service) classify(ctx context.Context, applicantID, inforequestID, messageID int64, d EmailDisposition) error {
	ir, err := s.store.GetInforequestOwned(ctx, inforequestID, applicantID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	oldest, err := s.store.OldestUndecided(ctx, tx, ir.ID)
	if err != nil {
		return err
	}
	if oldest.MessageID != messageID {
		return ErrNotOldest
	}
	if err := s.store.SetDisposition(ctx, tx, ir.ID, messageID, d); err != nil {
		return err
	}
	return tx.Commit()
}

// GrantExtension lets the applicant give the obligee n more working days on
// a missed deadline of the branch's last action.
func (s *Service) GrantExtension(ctx context.Context, applicantID, inforequestID,
	branchID int64, n int) (*Action, error) {

	_, branch, err := s.ownedBranch(ctx, inforequestID, applicantID, branchID)
	if err != nil {
		return nil, err
	}
	last := branch.LastAction()
	if !s.deadlines.Missed(last) {
		return nil, fmt.Errorf("%w: deadline is not missed", ErrValidation)
	}
	extension, err := s.deadlines.ExtensionFor(last, n)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.store.UpdateActionExtension(ctx, tx, last.ID, extension); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	last.Extension = extension
	return last, nil
}

func (s *Service) ownedBranch(ctx context.Context, inforequestID, applicantID, branchID int64) (*Inforequest, *Branch, error) {
	ir, err := s.store.GetInforequestOwned(ctx, inforequestID, applicantID)
	if err != nil {
		return nil, nil, err
	}
	if ir.Closed {
		return nil, nil, ErrClosed
	}
	branch := ir.BranchByID(branchID)
	if branch == nil {
		return nil, nil, ErrNotFound
	}
	return ir, branch, nil
}
