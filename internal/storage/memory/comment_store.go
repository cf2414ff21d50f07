package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/storage"
)

// CommentStore is an in-memory implementation of storage.CommentStore.
type CommentStore struct {
	mu        sync.RWMutex
	bySubject map[string][]domain.Comment // insertion order
	now       func() time.Time
}

// NewCommentStore creates a new in-memory comment store.
func NewCommentStore() *CommentStore {
	return &CommentStore{
		bySubject: make(map[string][]domain.Comment),
		now:       time.Now,
	}
}

// AddComment stores c unless its author reached the per-subject cap.
func (s *CommentStore) AddComment(_ context.Context, c *domain.Comment) error {
	if c == nil || c.SubjectID == "" || c.AuthorWallet == "" || c.Message == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.bySubject[c.SubjectID]
	n := 0
	for _, e := range existing {
		if e.AuthorWallet == c.AuthorWallet {
			n++
		}
	}
	if n >= domain.MaxCommentsPerAuthor {
		return storage.ErrLimitReached
	}

	c.ID = uuid.New().String()
	c.Message = domain.TruncateRunes(c.Message, domain.MaxCommentLength)
	c.Timestamp = s.now().UTC()
	s.bySubject[c.SubjectID] = append(existing, *c)
	return nil
}

// Comments returns up to limit comments on subjectID, newest first.
func (s *CommentStore) Comments(_ context.Context, subjectID string, limit int) ([]domain.Comment, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := s.bySubject[subjectID]
	result := make([]domain.Comment, 0, len(existing))
	for i := len(existing) - 1; i >= 0; i-- {
		result = append(result, existing[i])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.CommentStore = (*CommentStore)(nil)
