package inforequests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Storage provides methods to store and retrieve inforequests
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// DB exposes the underlying handle for transaction orchestration in the
// service layer.
func (s *Storage) DB() *sql.DB { return s.db }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// InsertInforequest inserts the aggregate row. Returns ErrAddressExhausted
// sentinel-compatible unique violations via errUniqueEmail.
func (s *Storage) InsertInforequest(ctx context.Context, tx *sql.Tx, ir *Inforequest) error {
	err := tx.QueryRowContext(ctx, `
	INSERT INTO inforequests
		(applicant_id, applicant_name, applicant_street, applicant_city, applicant_zip,
		 applicant_email, unique_email, submission_date, closed)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	RETURNING id`,
		ir.ApplicantID, ir.ApplicantName, ir.ApplicantStreet, ir.ApplicantCity,
		ir.ApplicantZip, ir.ApplicantEmail, ir.UniqueEmail, ir.SubmissionDate,
	).Scan(&ir.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return errUniqueEmailTaken
		}
		return fmt.Errorf("failed to insert inforequest: %w", err)
	}
	return nil
}

var errUniqueEmailTaken = errors.New("unique email already taken")

// InsertBranch inserts a branch row.
func (s *Storage) InsertBranch(ctx context.Context, tx *sql.Tx, b *Branch) error {
	var advancedBy sql.NullInt64
	if b.AdvancedByID != 0 {
		advancedBy = sql.NullInt64{Int64: b.AdvancedByID, Valid: true}
	}
	err := tx.QueryRowContext(ctx, `
	INSERT INTO branches (inforequest_id, obligee_id, historical_obligee_id, advanced_by)
	VALUES ($1, $2, $3, $4)
	RETURNING id`,
		b.InforequestID, b.ObligeeID, b.HistoricalObligeeID, advancedBy,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("failed to insert branch: %w", err)
	}
	return nil
}

// InsertAction inserts an action row. The default deadline must already be
// resolved on the struct.
func (s *Storage) InsertAction(ctx context.Context, tx *sql.Tx, a *Action) error {
	var email sql.NullInt64
	if a.EmailID != 0 {
		email = sql.NullInt64{Int64: a.EmailID, Valid: true}
	}
	var deadline sql.NullInt64
	if a.HasDeadline {
		deadline = sql.NullInt64{Int64: int64(a.Deadline), Valid: true}
	}
	var level sql.NullInt16
	if a.DisclosureLevel != 0 {
		level = sql.NullInt16{Int16: int16(a.DisclosureLevel), Valid: true}
	}
	err := tx.QueryRowContext(ctx, `
	INSERT INTO actions
		(branch_id, email_id, type, subject, content, content_type, effective_date,
		 file_number, deadline, extension, disclosure_level, refusal_reasons)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id`,
		a.BranchID, email, a.Type, a.Subject, a.Content, a.ContentType,
		a.EffectiveDate, a.FileNumber, deadline, a.Extension, level,
		joinReasons(a.RefusalReasons),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func joinReasons(reasons []RefusalReason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitReasons(raw string) []RefusalReason {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	res := make([]RefusalReason, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			res = append(res, RefusalReason(p))
		}
	}
	return res
}

// GetInforequest loads the aggregate with branches and actions.
func (s *Storage) GetInforequest(ctx context.Context, id int64) (*Inforequest, error) {
	return s.getInforequest(ctx, `WHERE i.id = $1`, id)
}

// GetInforequestOwned loads the aggregate only when owned by the given
// applicant; otherwise ErrNotFound, indistinguishable from a missing row.
func (s *Storage) GetInforequestOwned(ctx context.Context, id, applicantID int64) (*Inforequest, error) {
	return s.getInforequest(ctx, `WHERE i.id = $1 AND i.applicant_id = $2`, id, applicantID)
}

// GetInforequestByEmail resolves the aggregate by its unique reply address.
func (s *Storage) GetInforequestByEmail(ctx context.Context, address string) (*Inforequest, error) {
	return s.getInforequest(ctx, `WHERE i.unique_email = $1`, address)
}

func (s *Storage) getInforequest(ctx context.Context, where string, args ...interface{}) (*Inforequest, error) {
	var ir Inforequest
	var lastReminder sql.NullTime
	err := s.db.QueryRowContext(ctx, `
	SELECT i.id, i.applicant_id, i.applicant_name, i.applicant_street,
	       i.applicant_city, i.applicant_zip, i.applicant_email, i.unique_email,
	       i.submission_date, i.closed, i.last_undecided_email_reminder
	FROM inforequests i `+where, args...).Scan(
		&ir.ID, &ir.ApplicantID, &ir.ApplicantName, &ir.ApplicantStreet,
		&ir.ApplicantCity, &ir.ApplicantZip, &ir.ApplicantEmail, &ir.UniqueEmail,
		&ir.SubmissionDate, &ir.Closed, &lastReminder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inforequest: %w", err)
	}
	if lastReminder.Valid {
		ir.LastUndecidedEmailReminder = lastReminder.Time
	}

	if err := s.loadBranches(ctx, &ir); err != nil {
		return nil, err
	}
	return &ir, nil
}

func (s *Storage) loadBranches(ctx context.Context, ir *Inforequest) error {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, inforequest_id, obligee_id, historical_obligee_id, advanced_by
	FROM branches WHERE inforequest_id = $1 ORDER BY id`, ir.ID)
	if err != nil {
		return fmt.Errorf("failed to load branches: %w", err)
	}
	defer rows.Close()

	byID := map[int64]*Branch{}
	for rows.Next() {
		var b Branch
		var advancedBy sql.NullInt64
		if err := rows.Scan(&b.ID, &b.InforequestID, &b.ObligeeID, &b.HistoricalObligeeID, &advancedBy); err != nil {
			return err
		}
		if advancedBy.Valid {
			b.AdvancedByID = advancedBy.Int64
		}
		ir.Branches = append(ir.Branches, &b)
		byID[b.ID] = &b
	}
	if err := rows.Err(); err != nil {
		return err
	}

	arows, err := s.db.QueryContext(ctx, `
	SELECT a.id, a.branch_id, a.email_id, a.type, a.subject, a.content,
	       a.content_type, a.effective_date, a.file_number, a.deadline,
	       a.extension, a.disclosure_level, a.refusal_reasons, a.last_deadline_reminder
	FROM actions a
	JOIN branches b ON b.id = a.branch_id
	WHERE b.inforequest_id = $1
	ORDER BY a.effective_date, a.id`, ir.ID)
	if err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		a, err := scanAction(arows)
		if err != nil {
			return err
		}
		if b := byID[a.BranchID]; b != nil {
			b.Actions = append(b.Actions, a)
		}
	}
	return arows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*Action, error) {
	var a Action
	var email sql.NullInt64
	var deadline sql.NullInt64
	var level sql.NullInt16
	var reasons sql.NullString
	var reminder sql.NullTime
	err := row.Scan(&a.ID, &a.BranchID, &email, &a.Type, &a.Subject, &a.Content,
		&a.ContentType, &a.EffectiveDate, &a.FileNumber, &deadline,
		&a.Extension, &level, &reasons, &reminder)
	if err != nil {
		return nil, fmt.Errorf("failed to scan action: %w", err)
	}
	if email.Valid {
		a.EmailID = email.Int64
	}
	if deadline.Valid {
		a.Deadline = int(deadline.Int64)
		a.HasDeadline = true
	}
	if level.Valid {
		a.DisclosureLevel = DisclosureLevel(level.Int16)
	}
	if reasons.Valid {
		a.RefusalReasons = splitReasons(reasons.String)
	}
	if reminder.Valid {
		a.LastDeadlineReminder = reminder.Time
	}
	a.EffectiveDate = a.EffectiveDate.UTC()
	return &a, nil
}

// UpdateActionExtension stores a newly granted extension.
func (s *Storage) UpdateActionExtension(ctx context.Context, tx *sql.Tx, actionID int64, extension int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE actions SET extension = $1 WHERE id = $2`, extension, actionID)
	if err != nil {
		return fmt.Errorf("failed to update extension: %w", err)
	}
	return nil
}

// SetActionReminder stamps the last deadline reminder time on an action.
func (s *Storage) SetActionReminder(ctx context.Context, actionID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE actions SET last_deadline_reminder = $1 WHERE id = $2`, at, actionID)
	if err != nil {
		return fmt.Errorf("failed to stamp action reminder: %w", err)
	}
	return nil
}

// SetUndecidedReminder stamps the last undecided-email reminder time.
func (s *Storage) SetUndecidedReminder(ctx context.Context, inforequestID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inforequests SET last_undecided_email_reminder = $1 WHERE id = $2`, at, inforequestID)
	if err != nil {
		return fmt.Errorf("failed to stamp undecided reminder: %w", err)
	}
	return nil
}

// SetClosed closes an inforequest.
func (s *Storage) SetClosed(ctx context.Context, tx *sql.Tx, inforequestID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE inforequests SET closed = TRUE WHERE id = $1`, inforequestID)
	if err != nil {
		return fmt.Errorf("failed to close inforequest: %w", err)
	}
	return nil
}

// InsertInforequestEmail joins a message to an inforequest.
func (s *Storage) InsertInforequestEmail(ctx context.Context, tx *sql.Tx, ie *InforequestEmail) error {
	row := `
	INSERT INTO inforequest_emails (inforequest_id, message_id, disposition)
	VALUES ($1, $2, $3)
	RETURNING id`
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, row, ie.InforequestID, ie.MessageID, ie.Disposition).Scan(&ie.ID)
	} else {
		err = s.db.QueryRowContext(ctx, row, ie.InforequestID, ie.MessageID, ie.Disposition).Scan(&ie.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert inforequest email: %w", err)
	}
	return nil
}

// OldestUndecided returns the oldest undecided message of the inforequest
// under the (processed, id) order, or ErrNotFound. When tx is non-nil the
// read happens inside the transaction, which is how classification races
// are detected.
func (s *Storage) OldestUndecided(ctx context.Context, tx *sql.Tx, inforequestID int64) (*UndecidedEmail, error) {
	query := `
	SELECT m.id, m.processed, m.from_name, m.from_mail, m.subject
	FROM inforequest_emails ie
	JOIN messages m ON m.id = ie.message_id
	WHERE ie.inforequest_id = $1 AND ie.disposition = $2
	ORDER BY m.processed, m.id
	LIMIT 1`
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, inforequestID, DispositionUndecided)
	} else {
		row = s.db.QueryRowContext(ctx, query, inforequestID, DispositionUndecided)
	}
	var u UndecidedEmail
	err := row.Scan(&u.MessageID, &u.Processed, &u.FromName, &u.FromMail, &u.Subject)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest undecided: %w", err)
	}
	return &u, nil
}

// ListUndecided returns the undecided queue of the inforequest in arrival
// order.
func (s *Storage) ListUndecided(ctx context.Context, inforequestID int64) ([]*UndecidedEmail, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT m.id, m.processed, m.from_name, m.from_mail, m.subject
	FROM inforequest_emails ie
	JOIN messages m ON m.id = ie.message_id
	WHERE ie.inforequest_id = $1 AND ie.disposition = $2
	ORDER BY m.processed, m.id`, inforequestID, DispositionUndecided)
	if err != nil {
		return nil, fmt.Errorf("failed to list undecided: %w", err)
	}
	defer rows.Close()

	var res []*UndecidedEmail
	for rows.Next() {
		var u UndecidedEmail
		if err := rows.Scan(&u.MessageID, &u.Processed, &u.FromName, &u.FromMail, &u.Subject); err != nil {
			return nil, err
		}
		res = append(res, &u)
	}
	return res, rows.Err()
}

// SetDisposition re-classifies a message within an inforequest.
func (s *Storage) SetDisposition(ctx context.Context, tx *sql.Tx, inforequestID, messageID int64, d EmailDisposition) error {
	res, err := tx.ExecContext(ctx, `
	UPDATE inforequest_emails SET disposition = $1
	WHERE inforequest_id = $2 AND message_id = $3`, d, inforequestID, messageID)
	if err != nil {
		return fmt.Errorf("failed to set disposition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenIDs returns ids of open inforequests, optionally filtered by
// whether they have undecided emails.
func (s *Storage) ListOpenIDs(ctx context.Context, withUndecided *bool) ([]int64, error) {
	query := `SELECT i.id FROM inforequests i WHERE NOT i.closed`
	var args []any
	if withUndecided != nil {
		op := "EXISTS"
		if !*withUndecided {
			op = "NOT EXISTS"
		}
		query += ` AND ` + op + ` (
			SELECT 1 FROM inforequest_emails ie
			WHERE ie.inforequest_id = i.id AND ie.disposition = $1)`
		args = append(args, DispositionUndecided)
	}
	query += ` ORDER BY i.submission_date, i.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open inforequests: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListIDs returns the ids of all inforequests, closed ones included.
func (s *Storage) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM inforequests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list inforequests: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NewestUndecided returns the newest undecided message of the inforequest,
// used to throttle undecided reminders.
func (s *Storage) NewestUndecided(ctx context.Context, inforequestID int64) (*UndecidedEmail, error) {
	var u UndecidedEmail
	err := s.db.QueryRowContext(ctx, `
	SELECT m.id, m.processed, m.from_name, m.from_mail, m.subject
	FROM inforequest_emails ie
	JOIN messages m ON m.id = ie.message_id
	WHERE ie.inforequest_id = $1 AND ie.disposition = $2
	ORDER BY m.processed DESC, m.id DESC
	LIMIT 1`, inforequestID, DispositionUndecided).Scan(
		&u.MessageID, &u.Processed, &u.FromName, &u.FromMail, &u.Subject)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get newest undecided: %w", err)
	}
	return &u, nil
}
