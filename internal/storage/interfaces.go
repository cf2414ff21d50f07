package storage

import (
	"context"
	"time"

	"kol-scoreboard/internal/domain"
)

// VoteStore provides access to votes storage.
// At most one vote exists per (subjectID, voterID).
type VoteStore interface {
	// CastVote inserts, flips or toggles off the voter's vote on subjectID and
	// returns the subject's tally after the mutation.
	CastVote(ctx context.Context, subjectID, voterID string, voteType domain.VoteType) (domain.CastResult, error)

	// Tally aggregates all votes for subjectID. Unknown subjects return a zero tally.
	Tally(ctx context.Context, subjectID string) (domain.VoteTally, error)

	// TallyAll returns tallies for every subject with at least one vote, ordered by subject ID.
	TallyAll(ctx context.Context) ([]domain.VoteTally, error)

	// VotesByVoter returns subjectID -> vote type for the voter.
	VotesByVoter(ctx context.Context, voterID string) (map[string]domain.VoteType, error)

	// RecentVotes returns up to limit votes on subjectID, newest first.
	RecentVotes(ctx context.Context, subjectID string, limit int) ([]domain.Vote, error)
}

// MutationSource publishes committed vote mutations.
type MutationSource interface {
	// WatchMutations starts a subscription to mutations committed after the call.
	// The subscription is closed when ctx is cancelled.
	WatchMutations(ctx context.Context) (MutationSubscription, error)
}

// MutationSubscription is a live stream of vote mutations.
type MutationSubscription interface {
	// Mutations delivers mutations in commit order. Closed when the subscription ends.
	Mutations() <-chan domain.VoteMutation

	// Err returns the error that ended the subscription, nil after a clean Close.
	Err() error

	// Close ends the subscription and releases its resources. Idempotent.
	Close() error
}

// ScrapeCache stores recent scrape results keyed by address.
type ScrapeCache interface {
	// Get returns the cached payload for key, false on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ScrapeRunStore provides access to scrape_runs audit storage.
type ScrapeRunStore interface {
	// Insert adds one scrape run.
	Insert(ctx context.Context, run *domain.ScrapeRun) error

	// GetByAddress retrieves runs for an address, newest first, up to limit.
	GetByAddress(ctx context.Context, address string, limit int) ([]*domain.ScrapeRun, error)

	// OutcomeCounts returns run counts per outcome for runs started at or after since.
	OutcomeCounts(ctx context.Context, since time.Time) (map[domain.ScrapeOutcome]uint64, error)
}

// CommentStore provides access to subject comments.
type CommentStore interface {
	// AddComment stores c, assigning ID and Timestamp. Returns ErrLimitReached
	// when the author already has domain.MaxCommentsPerAuthor comments on the subject.
	AddComment(ctx context.Context, c *domain.Comment) error

	// Comments returns up to limit comments on subjectID, newest first. limit must be positive.
	Comments(ctx context.Context, subjectID string, limit int) ([]domain.Comment, error)
}

// NoteStore provides access to community notes.
// At most one note exists per (subjectID, submitterWallet).
type NoteStore interface {
	// SubmitNote stores n as pending, assigning ID and SubmittedAt.
	// Returns ErrDuplicate when the submitter already has a note on the subject.
	SubmitNote(ctx context.Context, n *domain.Note) error
}
