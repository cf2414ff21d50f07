package domain

import (
	"fmt"
	"time"
)

// VoteType is the direction of a vote.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// String returns the string representation of VoteType.
func (v VoteType) String() string {
	return string(v)
}

// IsValid checks if the vote type is a valid value.
func (v VoteType) IsValid() bool {
	return v == VoteUp || v == VoteDown
}

// ParseVoteType parses "up" or "down".
func ParseVoteType(s string) (VoteType, error) {
	v := VoteType(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid vote type %q", s)
	}
	return v, nil
}

// Vote is the current vote of one voter on one subject.
// At most one Vote exists per (SubjectID, VoterID).
type Vote struct {
	SubjectID string
	VoterID   string
	VoteType  VoteType
	Timestamp time.Time // time of the last cast
}

// VoteTally is the derived count of votes for a subject.
type VoteTally struct {
	SubjectID string
	Upvotes   int64
	Downvotes int64
	Net       int64 // Upvotes - Downvotes
}

// NewVoteTally builds a tally with Net derived from the counts.
func NewVoteTally(subjectID string, up, down int64) VoteTally {
	return VoteTally{
		SubjectID: subjectID,
		Upvotes:   up,
		Downvotes: down,
		Net:       up - down,
	}
}

// VoteAction is what a cast did to the stored vote.
type VoteAction string

const (
	VoteInserted VoteAction = "inserted"
	VoteUpdated  VoteAction = "updated"
	VoteRemoved  VoteAction = "removed"
)

// CastResult is the outcome of a single CastVote call.
type CastResult struct {
	Action VoteAction
	Tally  VoteTally // tally after the mutation
}
