package memory

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/storage"
)

// NoteStore is an in-memory implementation of storage.NoteStore.
type NoteStore struct {
	mu    sync.Mutex
	notes map[pairKey]domain.Note
	now   func() time.Time
}

// NewNoteStore creates a new in-memory note store.
func NewNoteStore() *NoteStore {
	return &NoteStore{
		notes: make(map[pairKey]domain.Note),
		now:   time.Now,
	}
}

// SubmitNote stores n as pending unless the submitter already has a note on the subject.
func (s *NoteStore) SubmitNote(_ context.Context, n *domain.Note) error {
	if n == nil || n.SubjectID == "" || n.SubmitterWallet == "" || n.Text == "" ||
		utf8.RuneCountInString(n.Text) > domain.MaxNoteLength {
		return storage.ErrInvalidInput
	}

	key := pairKey{subjectID: n.SubjectID, voterID: n.SubmitterWallet}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[key]; ok {
		return storage.ErrDuplicate
	}
	n.ID = uuid.New().String()
	n.Status = domain.NotePending
	n.SubmittedAt = s.now().UTC()
	s.notes[key] = *n
	return nil
}

var _ storage.NoteStore = (*NoteStore)(nil)
