// Package attachments stores uploaded file blobs. An attachment belongs to
// exactly one owner: a message, an action, an action draft or a wizard
// session. Names and content types come from the client and are sanitized
// before the row is written.
package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Owner kinds.
const (
	OwnerMessage     = "message"
	OwnerAction      = "action"
	OwnerActionDraft = "action_draft"
	OwnerWizardDraft = "wizard_draft"
	OwnerSession     = "session"
)

// ErrNotFound is returned when no attachment matches the lookup.
var ErrNotFound = errors.New("attachment not found")

// Attachment is one stored blob.
type Attachment struct {
	ID          uuid.UUID
	OwnerKind   string
	OwnerID     string
	Name        string
	ContentType string
	Size        int64
	Content     []byte
	Created     time.Time
}

// contentTypeWhitelist lists content types served back verbatim. Anything
// else is stored as application/octet-stream.
var contentTypeWhitelist = map[string]bool{
	"text/plain":         true,
	"text/html":          true,
	"application/pdf":    true,
	"image/png":          true,
	"image/jpeg":         true,
	"image/gif":          true,
	"application/zip":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.oasis.opendocument.text":                                 true,
}

// SanitizeName strips any path components and control characters from a
// client-supplied file name.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, `/`))
	name = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = "attachment"
	}
	return name
}

// SanitizeContentType whitelists known content types.
func SanitizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if contentTypeWhitelist[ct] {
		return ct
	}
	return "application/octet-stream"
}

// Storage provides methods to store and retrieve attachments
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Create inserts a new attachment, sanitizing its name and content type.
func (s *Storage) Create(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Name = SanitizeName(a.Name)
	a.ContentType = SanitizeContentType(a.ContentType)
	a.Size = int64(len(a.Content))

	query := `
	INSERT INTO attachments (id, owner_kind, owner_id, name, content_type, size, content, created)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	RETURNING created
	`
	err := s.db.QueryRowContext(ctx, query,
		a.ID, a.OwnerKind, a.OwnerID, a.Name, a.ContentType, a.Size, a.Content,
	).Scan(&a.Created)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// Get retrieves an attachment by id.
func (s *Storage) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	var a Attachment
	err := s.db.QueryRowContext(ctx, `
	SELECT id, owner_kind, owner_id, name, content_type, size, content, created
	FROM attachments WHERE id = $1`, id).Scan(
		&a.ID, &a.OwnerKind, &a.OwnerID, &a.Name, &a.ContentType, &a.Size, &a.Content, &a.Created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &a, nil
}

// ListOwned returns the attachments of one owner, ordered by creation.
func (s *Storage) ListOwned(ctx context.Context, ownerKind, ownerID string) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, owner_kind, owner_id, name, content_type, size, content, created
	FROM attachments
	WHERE owner_kind = $1 AND owner_id = $2
	ORDER BY created, id`, ownerKind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var res []*Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.OwnerKind, &a.OwnerID, &a.Name, &a.ContentType, &a.Size, &a.Content, &a.Created); err != nil {
			return nil, err
		}
		res = append(res, &a)
	}
	return res, rows.Err()
}

// Reassign moves all attachments of one owner to another, e.g. from a draft
// to the committed action.
func (s *Storage) Reassign(ctx context.Context, tx *sql.Tx, fromKind, fromID, toKind, toID string) error {
	_, err := tx.ExecContext(ctx, `
	UPDATE attachments SET owner_kind = $1, owner_id = $2
	WHERE owner_kind = $3 AND owner_id = $4`, toKind, toID, fromKind, fromID)
	if err != nil {
		return fmt.Errorf("failed to reassign attachments: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes attachments whose owner row no longer exists
// and that are older than the cutoff. Returns the number of deleted rows.
func (s *Storage) DeleteUnreferenced(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
	DELETE FROM attachments a
	WHERE a.created < $1
	  AND CASE a.owner_kind
		WHEN 'message'      THEN NOT EXISTS (SELECT 1 FROM messages m WHERE m.id::text = a.owner_id)
		WHEN 'action'       THEN NOT EXISTS (SELECT 1 FROM actions x WHERE x.id::text = a.owner_id)
		WHEN 'action_draft' THEN NOT EXISTS (SELECT 1 FROM action_drafts d WHERE d.id::text = a.owner_id)
		WHEN 'wizard_draft' THEN NOT EXISTS (SELECT 1 FROM wizard_drafts w WHERE w.id = a.owner_id)
		ELSE TRUE
	  END
	`
	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to gc attachments: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("deleted", n).Time("older_than", olderThan).Msg("Attachment GC removed unreferenced blobs")
	}
	return n, nil
}
