package domain

import "time"

// Community feedback limits.
const (
	// MaxCommentsPerAuthor caps comments one wallet may leave on one subject.
	MaxCommentsPerAuthor = 3

	// MaxCommentLength is the stored comment length in runes. Longer messages are truncated.
	MaxCommentLength = 500

	// CommentPageSize is the number of comments returned per subject.
	CommentPageSize = 50

	// MaxNoteLength is the longest accepted note in runes. Longer notes are rejected.
	MaxNoteLength = 200
)

// Comment is a short public remark on a subject.
type Comment struct {
	ID           string
	SubjectID    string
	AuthorWallet string
	Message      string
	Timestamp    time.Time
}

// NoteStatus is the moderation state of a community note.
type NoteStatus string

const (
	NotePending  NoteStatus = "pending"
	NoteApproved NoteStatus = "approved"
	NoteRejected NoteStatus = "rejected"
)

// Note is a community-submitted annotation awaiting review.
// At most one Note exists per (SubjectID, SubmitterWallet).
type Note struct {
	ID              string
	SubjectID       string
	SubmitterWallet string
	Text            string
	Status          NoteStatus
	SubmittedAt     time.Time
}

// TruncateRunes shortens s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n < 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
