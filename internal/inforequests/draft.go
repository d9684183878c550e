package inforequests

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/attachments"
	"github.com/infodesk/internal/workdays"
)

// ActionDraft is an obligee action being entered by hand, one per
// inforequest. It carries the same fields as the action it will become but
// none of the state machine consequences; uploaded attachments park on the
// draft and move to the action at commit.
type ActionDraft struct {
	ID            int64
	InforequestID int64
	// BranchID is zero while the branch is still unchosen.
	BranchID int64
	// Type is zero while the interview has not resolved one.
	Type            ActionType
	Subject         string
	Content         string
	EffectiveDate   time.Time
	FileNumber      string
	DisclosureLevel DisclosureLevel
	RefusalReasons  []RefusalReason
	AdvancedTo      []int64
	Modified        time.Time
}

// SaveActionDraft upserts the draft of the given inforequest.
func (s *Storage) SaveActionDraft(ctx context.Context, d *ActionDraft) error {
	var branch sql.NullInt64
	if d.BranchID != 0 {
		branch = sql.NullInt64{Int64: d.BranchID, Valid: true}
	}
	var effective sql.NullTime
	if !d.EffectiveDate.IsZero() {
		effective = sql.NullTime{Time: d.EffectiveDate, Valid: true}
	}
	var level sql.NullInt64
	if d.DisclosureLevel != 0 {
		level = sql.NullInt64{Int64: int64(d.DisclosureLevel), Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
	INSERT INTO action_drafts
		(inforequest_id, branch_id, type, subject, content, effective_date,
		 file_number, disclosure_level, refusal_reasons, advanced_to, modified)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (inforequest_id) DO UPDATE SET
		branch_id = EXCLUDED.branch_id,
		type = EXCLUDED.type,
		subject = EXCLUDED.subject,
		content = EXCLUDED.content,
		effective_date = EXCLUDED.effective_date,
		file_number = EXCLUDED.file_number,
		disclosure_level = EXCLUDED.disclosure_level,
		refusal_reasons = EXCLUDED.refusal_reasons,
		advanced_to = EXCLUDED.advanced_to,
		modified = EXCLUDED.modified
	RETURNING id`,
		d.InforequestID, branch, int(d.Type), d.Subject, d.Content, effective,
		d.FileNumber, level, joinReasons(d.RefusalReasons), joinIDs(d.AdvancedTo),
		d.Modified,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to save action draft: %w", err)
	}
	return nil
}

// GetActionDraft returns the draft of the given inforequest, ErrNotFound
// when there is none.
func (s *Storage) GetActionDraft(ctx context.Context, inforequestID int64) (*ActionDraft, error) {
	var (
		d         ActionDraft
		branch    sql.NullInt64
		effective sql.NullTime
		level     sql.NullInt64
		reasons   string
		advanced  string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT id, inforequest_id, branch_id, type, subject, content, effective_date,
	       file_number, disclosure_level, refusal_reasons, advanced_to, modified
	FROM action_drafts
	WHERE inforequest_id = $1`, inforequestID,
	).Scan(&d.ID, &d.InforequestID, &branch, &d.Type, &d.Subject, &d.Content,
		&effective, &d.FileNumber, &level, &reasons, &advanced, &d.Modified)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action draft: %w", err)
	}
	d.BranchID = branch.Int64
	if effective.Valid {
		d.EffectiveDate = workdays.DateOf(effective.Time)
	}
	d.DisclosureLevel = DisclosureLevel(level.Int64)
	d.RefusalReasons = splitReasons(reasons)
	d.AdvancedTo = splitIDs(advanced)
	return &d, nil
}

// DeleteActionDraft removes the draft of the given inforequest and returns
// its id, zero when there was none.
func (s *Storage) DeleteActionDraft(ctx context.Context, tx *sql.Tx, inforequestID int64) (int64, error) {
	query := `DELETE FROM action_drafts WHERE inforequest_id = $1 RETURNING id`
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, inforequestID)
	} else {
		row = s.db.QueryRowContext(ctx, query, inforequestID)
	}
	var id int64
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete action draft: %w", err)
	}
	return id, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// SaveDraft stores the applicant's in-progress obligee action.
func (s *Service) SaveDraft(ctx context.Context, applicantID int64, d *ActionDraft) error {
	ir, err := s.store.GetInforequestOwned(ctx, d.InforequestID, applicantID)
	if err != nil {
		return err
	}
	if ir.Closed {
		return ErrClosed
	}
	if d.BranchID != 0 && ir.BranchByID(d.BranchID) == nil {
		return ErrNotFound
	}
	if d.Type != 0 && !d.Type.IsObligeeAction() {
		return fmt.Errorf("%w: %s is not an obligee action", ErrValidation, d.Type)
	}
	d.Modified = s.deadlines.Clock.Now()
	return s.store.SaveActionDraft(ctx, d)
}

// Draft returns the applicant's in-progress obligee action.
func (s *Service) Draft(ctx context.Context, applicantID, inforequestID int64) (*ActionDraft, error) {
	if _, err := s.store.GetInforequestOwned(ctx, inforequestID, applicantID); err != nil {
		return nil, err
	}
	return s.store.GetActionDraft(ctx, inforequestID)
}

// DiscardDraft drops the in-progress obligee action. Attachments parked on
// the draft are left for the garbage collection sweep.
func (s *Service) DiscardDraft(ctx context.Context, applicantID, inforequestID int64) error {
	if _, err := s.store.GetInforequestOwned(ctx, inforequestID, applicantID); err != nil {
		return err
	}
	id, err := s.store.DeleteActionDraft(ctx, nil, inforequestID)
	if err != nil {
		return err
	}
	if id != 0 {
		log.Info().Int64("inforequest_id", inforequestID).Msg("Discarded action draft")
	}
	return nil
}

// commitDraft removes the draft once its action is recorded and moves the
// parked attachments onto the action. Runs inside the append transaction.
func (s *Service) commitDraft(ctx context.Context, tx *sql.Tx, inforequestID int64, action *Action) error {
	draftID, err := s.store.DeleteActionDraft(ctx, tx, inforequestID)
	if err != nil {
		return err
	}
	if draftID == 0 || s.attachments == nil {
		return nil
	}
	return s.attachments.Reassign(ctx, tx,
		attachments.OwnerActionDraft, strconv.FormatInt(draftID, 10),
		attachments.OwnerAction, strconv.FormatInt(action.ID, 10))
}
