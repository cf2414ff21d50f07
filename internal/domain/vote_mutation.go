package domain

import "time"

// MutationOp is the kind of change applied to a vote row.
type MutationOp string

const (
	MutationInsert MutationOp = "insert"
	MutationUpdate MutationOp = "update"
	MutationDelete MutationOp = "delete"
)

// VoteMutation is one committed change to the vote store.
// Before is set for updates and deletes, After for inserts and updates.
type VoteMutation struct {
	Op     MutationOp
	Before *Vote
	After  *Vote
	At     time.Time
}

// Subject returns the affected vote, preferring the post-image.
// Deletes only carry the pre-image.
func (m VoteMutation) Subject() (Vote, bool) {
	if m.After != nil {
		return *m.After, true
	}
	if m.Before != nil {
		return *m.Before, true
	}
	return Vote{}, false
}

// BroadcastEventRemoved is the VoteType reported for deletions.
const BroadcastEventRemoved = "removed"

// BroadcastEvent is the live notification sent to stream subscribers.
type BroadcastEvent struct {
	SubjectID string    `json:"subjectId"`
	VoterID   string    `json:"voterId"`
	VoteType  string    `json:"voteType"` // up | down | removed
	Net       int64     `json:"net"`
	Upvotes   int64     `json:"upvotes"`
	Downvotes int64     `json:"downvotes"`
	Timestamp time.Time `json:"timestamp"`
}
