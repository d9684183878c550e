package wizards

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoDraft is returned when no draft exists for the instance key.
var ErrNoDraft = errors.New("no draft")

// Draft is the persisted state of one wizard instance: the raw values and
// the step the user currently sits on.
type Draft struct {
	// ID is the instance key, wizard name plus anchor.
	ID          string
	ApplicantID int64
	Step        string
	Values      Values
	Modified    time.Time
}

// DraftStore persists wizard drafts.
type DraftStore interface {
	Get(ctx context.Context, id string, applicantID int64) (*Draft, error)
	Save(ctx context.Context, d *Draft) error
	Delete(ctx context.Context, id string, applicantID int64) error
}

// SQLDraftStore keeps drafts in the wizard_drafts table, values as JSON.
type SQLDraftStore struct {
	db *sql.DB
}

// NewSQLDraftStore creates a SQL-backed draft store.
func NewSQLDraftStore(db *sql.DB) *SQLDraftStore {
	return &SQLDraftStore{db: db}
}

func (s *SQLDraftStore) Get(ctx context.Context, id string, applicantID int64) (*Draft, error) {
	var d Draft
	var data []byte
	err := s.db.QueryRowContext(ctx, `
	SELECT id, applicant_id, step, data, modified
	FROM wizard_drafts WHERE id = $1 AND applicant_id = $2`, id, applicantID).Scan(
		&d.ID, &d.ApplicantID, &d.Step, &data, &d.Modified)
	if err == sql.ErrNoRows {
		return nil, ErrNoDraft
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	if err := json.Unmarshal(data, &d.Values); err != nil {
		return nil, fmt.Errorf("unmarshal draft values: %w", err)
	}
	return &d, nil
}

func (s *SQLDraftStore) Save(ctx context.Context, d *Draft) error {
	data, err := json.Marshal(d.Values)
	if err != nil {
		return fmt.Errorf("marshal draft values: %w", err)
	}
	d.Modified = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO wizard_drafts (id, applicant_id, step, data, modified)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE
	SET step = EXCLUDED.step, data = EXCLUDED.data, modified = EXCLUDED.modified
	WHERE wizard_drafts.applicant_id = EXCLUDED.applicant_id`,
		d.ID, d.ApplicantID, d.Step, data, d.Modified)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *SQLDraftStore) Delete(ctx context.Context, id string, applicantID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM wizard_drafts WHERE id = $1 AND applicant_id = $2`, id, applicantID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// MemoryDraftStore keeps drafts in memory, for tests.
type MemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

// NewMemoryDraftStore creates an empty in-memory store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: map[string]*Draft{}}
}

func (s *MemoryDraftStore) Get(ctx context.Context, id string, applicantID int64) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok || d.ApplicantID != applicantID {
		return nil, ErrNoDraft
	}
	c := *d
	c.Values = d.Values.clone()
	return &c, nil
}

func (s *MemoryDraftStore) Save(ctx context.Context, d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.drafts[d.ID]; ok && old.ApplicantID != d.ApplicantID {
		return nil
	}
	c := *d
	c.Values = d.Values.clone()
	c.Modified = time.Now().UTC()
	s.drafts[d.ID] = &c
	return nil
}

func (s *MemoryDraftStore) Delete(ctx context.Context, id string, applicantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if ok && d.ApplicantID == applicantID {
		delete(s.drafts, id)
	}
	return nil
}
