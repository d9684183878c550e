package mail

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no message matches the lookup.
var ErrNotFound = errors.New("message not found")

// Storage provides methods to store and retrieve messages
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// CreateMessage inserts a message and its recipients. Works inside the
// given transaction when tx is non-nil.
func (s *Storage) CreateMessage(ctx context.Context, tx *sql.Tx, m *Message) error {
	headers, err := json.Marshal(m.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	query := `
	INSERT INTO messages (direction, processed, from_name, from_mail, subject, text, html, headers)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id
	`
	row := s.queryRow(ctx, tx, query,
		m.Direction, m.Processed, m.FromName, m.FromMail, m.Subject, m.Text, m.HTML, headers)
	if err := row.Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	for i := range m.Recipients {
		r := &m.Recipients[i]
		r.MessageID = m.ID
		row := s.queryRow(ctx, tx, `
		INSERT INTO recipients (message_id, name, mail, kind, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, r.MessageID, r.Name, r.Mail, r.Kind, r.Status)
		if err := row.Scan(&r.ID); err != nil {
			return fmt.Errorf("failed to create recipient: %w", err)
		}
	}
	return nil
}

// GetMessage retrieves a message with its recipients.
func (s *Storage) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var m Message
	var headers []byte
	err := s.db.QueryRowContext(ctx, `
	SELECT id, direction, processed, from_name, from_mail, subject, text, html, headers
	FROM messages WHERE id = $1`, id).Scan(
		&m.ID, &m.Direction, &m.Processed, &m.FromName, &m.FromMail,
		&m.Subject, &m.Text, &m.HTML, &headers)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &m.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, message_id, name, mail, kind, status
	FROM recipients WHERE message_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ID, &r.MessageID, &r.Name, &r.Mail, &r.Kind, &r.Status); err != nil {
			return nil, err
		}
		m.Recipients = append(m.Recipients, r)
	}
	return &m, rows.Err()
}

// UpdateRecipientStatus records a delivery status reported by the transport.
func (s *Storage) UpdateRecipientStatus(ctx context.Context, recipientID int64, status RecipientStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET status = $1 WHERE id = $2`, status, recipientID)
	if err != nil {
		return fmt.Errorf("failed to update recipient status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) *sql.Row {
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return s.db.QueryRowContext(ctx, query, args...)
}
