package obligees

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when no obligee matches the lookup.
var ErrNotFound = errors.New("obligee not found")

// Storage provides methods to store and retrieve obligees
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Create inserts a new obligee and records its "+" history snapshot. The
// slug is derived from the name; Status defaults to PENDING.
func (s *Storage) Create(ctx context.Context, o *Obligee, editor string) error {
	if o.Status == 0 {
		o.Status = StatusPending
	}
	o.Slug = Slugify(o.Name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO obligees (name, street, city, zip, emails, status, slug)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		o.Name, o.Street, o.City, o.Zip, o.Emails, o.Status, o.Slug,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to create obligee: %w", err)
	}

	if err := snapshot(ctx, tx, o, HistoryCreated, editor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Debug().Int64("obligee_id", o.ID).Str("slug", o.Slug).Msg("Created obligee")
	return nil
}

// Update persists a mutation and records its "~" history snapshot. The slug
// is re-derived from the (possibly changed) name.
func (s *Storage) Update(ctx context.Context, o *Obligee, editor string) error {
	o.Slug = Slugify(o.Name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
	UPDATE obligees
	SET name = $1, street = $2, city = $3, zip = $4, emails = $5, status = $6, slug = $7
	WHERE id = $8
	`
	res, err := tx.ExecContext(ctx, query,
		o.Name, o.Street, o.City, o.Zip, o.Emails, o.Status, o.Slug, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update obligee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := snapshot(ctx, tx, o, HistoryChanged, editor); err != nil {
		return err
	}

	return tx.Commit()
}

func snapshot(ctx context.Context, tx *sql.Tx, o *Obligee, htype HistoryType, editor string) error {
	query := `
	INSERT INTO obligee_history
		(obligee_id, name, street, city, zip, emails, status, slug, history_date, history_type, history_user)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), $9, $10)
	`
	_, err := tx.ExecContext(ctx, query,
		o.ID, o.Name, o.Street, o.City, o.Zip, o.Emails, o.Status, o.Slug, htype, editor)
	if err != nil {
		return fmt.Errorf("failed to snapshot obligee: %w", err)
	}
	return nil
}

// GetByID retrieves an obligee by ID.
func (s *Storage) GetByID(ctx context.Context, id int64) (*Obligee, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
	SELECT id, name, street, city, zip, emails, status, slug
	FROM obligees WHERE id = $1`, id))
}

// FirstByName retrieves the obligee with the given exact name. Historical
// data contains duplicate names; the lowest id wins deterministically.
func (s *Storage) FirstByName(ctx context.Context, name string) (*Obligee, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
	SELECT id, name, street, city, zip, emails, status, slug
	FROM obligees WHERE name = $1 ORDER BY id LIMIT 1`, name))
}

func (s *Storage) scanOne(row *sql.Row) (*Obligee, error) {
	var o Obligee
	err := row.Scan(&o.ID, &o.Name, &o.Street, &o.City, &o.Zip, &o.Emails, &o.Status, &o.Slug)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligee: %w", err)
	}
	return &o, nil
}

// Search returns obligees whose slug starts with the slug of the query,
// ordered by name.
func (s *Storage) Search(ctx context.Context, query string, limit int) ([]*Obligee, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, name, street, city, zip, emails, status, slug
	FROM obligees
	WHERE slug LIKE $1 || '%'
	ORDER BY name, id
	LIMIT $2`, Slugify(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search obligees: %w", err)
	}
	defer rows.Close()

	var res []*Obligee
	for rows.Next() {
		var o Obligee
		if err := rows.Scan(&o.ID, &o.Name, &o.Street, &o.City, &o.Zip, &o.Emails, &o.Status, &o.Slug); err != nil {
			return nil, err
		}
		res = append(res, &o)
	}
	return res, rows.Err()
}

// LatestSnapshot returns the most recent history snapshot of the obligee.
// Branches freeze this reference at creation time.
func (s *Storage) LatestSnapshot(ctx context.Context, obligeeID int64) (*HistoricalObligee, error) {
	var h HistoricalObligee
	err := s.db.QueryRowContext(ctx, `
	SELECT id, obligee_id, name, street, city, zip, emails, status, slug,
	       history_date, history_type, history_user
	FROM obligee_history
	WHERE obligee_id = $1
	ORDER BY history_date DESC, id DESC
	LIMIT 1`, obligeeID).Scan(
		&h.ID, &h.ObligeeID, &h.Name, &h.Street, &h.City, &h.Zip, &h.Emails,
		&h.Status, &h.Slug, &h.HistoryDate, &h.HistoryType, &h.HistoryUser)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligee snapshot: %w", err)
	}
	return &h, nil
}

// GetSnapshot returns a history snapshot by its own id.
func (s *Storage) GetSnapshot(ctx context.Context, id int64) (*HistoricalObligee, error) {
	var h HistoricalObligee
	err := s.db.QueryRowContext(ctx, `
	SELECT id, obligee_id, name, street, city, zip, emails, status, slug,
	       history_date, history_type, history_user
	FROM obligee_history
	WHERE id = $1`, id).Scan(
		&h.ID, &h.ObligeeID, &h.Name, &h.Street, &h.City, &h.Zip, &h.Emails,
		&h.Status, &h.Slug, &h.HistoryDate, &h.HistoryType, &h.HistoryUser)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligee snapshot: %w", err)
	}
	return &h, nil
}
