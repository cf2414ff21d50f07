package mongo

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// commentDoc is the stored form of a comment. Slot numbers an author's
// comments on a subject from zero; the unique index on it enforces the cap.
type commentDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	SubjectID    string             `bson:"subject_id"`
	AuthorWallet string             `bson:"author_wallet"`
	Slot         int                `bson:"slot"`
	Message      string             `bson:"message"`
	CreatedAt    time.Time          `bson:"created_at"`
}

// CommentStore is a MongoDB implementation of storage.CommentStore.
type CommentStore struct {
	coll    *mongo.Collection
	retries int
	now     func() time.Time
}

// NewCommentStore creates a comment store over coll. Call EnsureCommunitySchema first.
func NewCommentStore(coll *mongo.Collection) *CommentStore {
	return &CommentStore{
		coll:    coll,
		retries: storage.DefaultContentionRetries,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

// AddComment stores c in the author's next free slot. A slot taken by a
// concurrent writer surfaces as ErrContention and is retried.
func (s *CommentStore) AddComment(ctx context.Context, c *domain.Comment) error {
	if c == nil || c.SubjectID == "" || c.AuthorWallet == "" || c.Message == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	err := storage.RetryOnContention(ctx, s.retries, func(int) {
		observability.RecordStoreRetry("mongo")
	}, func() error {
		return s.addOnce(ctx, c)
	})
	observability.RecordDBQuery("mongo", "add_comment", time.Since(start).Seconds(), err)
	return err
}

func (s *CommentStore) addOnce(ctx context.Context, c *domain.Comment) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{keySubjectID: c.SubjectID, keyAuthorWallet: c.AuthorWallet})
	if err != nil {
		return fmt.Errorf("count comments: %w", err)
	}
	if n >= domain.MaxCommentsPerAuthor {
		return storage.ErrLimitReached
	}

	doc := commentDoc{
		SubjectID:    c.SubjectID,
		AuthorWallet: c.AuthorWallet,
		Slot:         int(n),
		Message:      domain.TruncateRunes(c.Message, domain.MaxCommentLength),
		CreatedAt:    s.now(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert comment: %w", storage.ErrContention)
	}
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		c.ID = id.Hex()
	}
	c.Message = doc.Message
	c.Timestamp = doc.CreatedAt
	return nil
}

// Comments returns up to limit comments on subjectID, newest first.
func (s *CommentStore) Comments(ctx context.Context, subjectID string, limit int) ([]domain.Comment, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	opts := options.Find().
		SetSort(bson.D{{Key: keyCreatedAt, Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{keySubjectID: subjectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}

	out := make([]domain.Comment, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Comment{
			ID:           d.ID.Hex(),
			SubjectID:    d.SubjectID,
			AuthorWallet: d.AuthorWallet,
			Message:      d.Message,
			Timestamp:    d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// noteDoc is the stored form of a community note.
type noteDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	SubjectID       string             `bson:"subject_id"`
	SubmitterWallet string             `bson:"submitter_wallet"`
	Note            string             `bson:"note"`
	Status          string             `bson:"status"`
	SubmittedAt     time.Time          `bson:"submitted_at"`
	ReviewedAt      *time.Time         `bson:"reviewed_at"`
	ReviewedBy      *string            `bson:"reviewed_by"`
}

// NoteStore is a MongoDB implementation of storage.NoteStore.
type NoteStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewNoteStore creates a note store over coll. Call EnsureCommunitySchema first.
func NewNoteStore(coll *mongo.Collection) *NoteStore {
	return &NoteStore{
		coll: coll,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

// SubmitNote stores n as pending. The unique index rejects a second note from the same submitter.
func (s *NoteStore) SubmitNote(ctx context.Context, n *domain.Note) error {
	if n == nil || n.SubjectID == "" || n.SubmitterWallet == "" || n.Text == "" ||
		utf8.RuneCountInString(n.Text) > domain.MaxNoteLength {
		return storage.ErrInvalidInput
	}

	doc := noteDoc{
		SubjectID:       n.SubjectID,
		SubmitterWallet: n.SubmitterWallet,
		Note:            n.Text,
		Status:          string(domain.NotePending),
		SubmittedAt:     s.now(),
	}
	start := time.Now()
	res, err := s.coll.InsertOne(ctx, doc)
	observability.RecordDBQuery("mongo", "submit_note", time.Since(start).Seconds(), err)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}

	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = id.Hex()
	}
	n.Status = domain.NotePending
	n.SubmittedAt = doc.SubmittedAt
	return nil
}

var (
	_ storage.CommentStore = (*CommentStore)(nil)
	_ storage.NoteStore    = (*NoteStore)(nil)
)
