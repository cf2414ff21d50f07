package postgres

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// CommentStore is a PostgreSQL implementation of storage.CommentStore.
// Inserts for one (subject_id, author_wallet) serialize on a transaction-scoped advisory lock.
type CommentStore struct {
	pool *Pool
}

// NewCommentStore creates a new PostgreSQL comment store.
func NewCommentStore(pool *Pool) *CommentStore {
	return &CommentStore{pool: pool}
}

// AddComment stores c unless its author reached the per-subject cap.
func (s *CommentStore) AddComment(ctx context.Context, c *domain.Comment) error {
	if c == nil || c.SubjectID == "" || c.AuthorWallet == "" || c.Message == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	err := s.addOnce(ctx, c)
	observability.RecordDBQuery("postgres", "add_comment", time.Since(start).Seconds(), err)
	return err
}

func (s *CommentStore) addOnce(ctx context.Context, c *domain.Comment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add comment: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const lockQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`
	if _, err := tx.Exec(ctx, lockQuery, c.SubjectID, c.AuthorWallet); err != nil {
		return fmt.Errorf("lock comment author: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM comments WHERE subject_id = $1 AND author_wallet = $2`
	var n int
	if err := tx.QueryRow(ctx, countQuery, c.SubjectID, c.AuthorWallet).Scan(&n); err != nil {
		return fmt.Errorf("count comments: %w", err)
	}
	if n >= domain.MaxCommentsPerAuthor {
		return storage.ErrLimitReached
	}

	const insertQuery = `
		INSERT INTO comments (id, subject_id, author_wallet, message, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`
	id := uuid.New().String()
	message := domain.TruncateRunes(c.Message, domain.MaxCommentLength)
	var createdAt time.Time
	if err := tx.QueryRow(ctx, insertQuery, id, c.SubjectID, c.AuthorWallet, message).Scan(&createdAt); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit add comment: %w", err)
	}

	c.ID = id
	c.Message = message
	c.Timestamp = createdAt.UTC()
	return nil
}

// Comments returns up to limit comments on subjectID, newest first.
func (s *CommentStore) Comments(ctx context.Context, subjectID string, limit int) ([]domain.Comment, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	const query = `
		SELECT id::text, subject_id, author_wallet, message, created_at
		FROM comments
		WHERE subject_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	return scanComments(rows)
}

func scanComments(rows pgx.Rows) ([]domain.Comment, error) {
	result := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.AuthorWallet, &c.Message, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return result, nil
}

// NoteStore is a PostgreSQL implementation of storage.NoteStore.
type NoteStore struct {
	pool *Pool
}

// NewNoteStore creates a new PostgreSQL note store.
func NewNoteStore(pool *Pool) *NoteStore {
	return &NoteStore{pool: pool}
}

// SubmitNote stores n as pending. The unique key rejects a second note from the same submitter.
func (s *NoteStore) SubmitNote(ctx context.Context, n *domain.Note) error {
	if n == nil || n.SubjectID == "" || n.SubmitterWallet == "" || n.Text == "" ||
		utf8.RuneCountInString(n.Text) > domain.MaxNoteLength {
		return storage.ErrInvalidInput
	}

	const query = `
		INSERT INTO community_notes (id, subject_id, submitter_wallet, note, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING submitted_at
	`

	id := uuid.New().String()
	var submittedAt time.Time
	start := time.Now()
	err := s.pool.QueryRow(ctx, query, id, n.SubjectID, n.SubmitterWallet, n.Text, string(domain.NotePending)).Scan(&submittedAt)
	observability.RecordDBQuery("postgres", "submit_note", time.Since(start).Seconds(), err)
	if hasCode(err, pgErrUniqueViolation) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	n.ID = id
	n.Status = domain.NotePending
	n.SubmittedAt = submittedAt.UTC()
	return nil
}

var (
	_ storage.CommentStore = (*CommentStore)(nil)
	_ storage.NoteStore    = (*NoteStore)(nil)
)
