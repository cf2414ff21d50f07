package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// VoteStore is a PostgreSQL implementation of storage.VoteStore.
// Same-pair writes serialize on the row lock and the (subject_id, voter_id) unique key.
type VoteStore struct {
	pool    *Pool
	retries int
}

// NewVoteStore creates a new PostgreSQL vote store.
func NewVoteStore(pool *Pool) *VoteStore {
	return &VoteStore{pool: pool, retries: storage.DefaultContentionRetries}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CastVote inserts, flips or toggles off the voter's vote on subjectID.
// Contended writes are retried before ErrContention is returned.
func (s *VoteStore) CastVote(ctx context.Context, subjectID, voterID string, voteType domain.VoteType) (domain.CastResult, error) {
	if subjectID == "" || voterID == "" || !voteType.IsValid() {
		return domain.CastResult{}, storage.ErrInvalidInput
	}

	var result domain.CastResult
	start := time.Now()
	err := storage.RetryOnContention(ctx, s.retries, func(int) {
		observability.RecordStoreRetry("postgres")
	}, func() error {
		var err error
		result, err = s.castOnce(ctx, subjectID, voterID, voteType)
		return err
	})
	observability.RecordDBQuery("postgres", "cast_vote", time.Since(start).Seconds(), err)
	if err != nil {
		return domain.CastResult{}, err
	}
	return result, nil
}

func (s *VoteStore) castOnce(ctx context.Context, subjectID, voterID string, voteType domain.VoteType) (domain.CastResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.CastResult{}, fmt.Errorf("begin cast vote: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const selectQuery = `
		SELECT vote_type FROM votes
		WHERE subject_id = $1 AND voter_id = $2
		FOR UPDATE
	`

	var (
		current string
		action  domain.VoteAction
	)
	err = tx.QueryRow(ctx, selectQuery, subjectID, voterID).Scan(&current)
	switch {
	case isNotFoundError(err):
		const insertQuery = `
			INSERT INTO votes (id, subject_id, voter_id, vote_type, voted_at)
			VALUES ($1, $2, $3, $4, now())
		`
		_, err = tx.Exec(ctx, insertQuery, uuid.New().String(), subjectID, voterID, string(voteType))
		action = domain.VoteInserted

	case err != nil:
		return domain.CastResult{}, classify("select vote", err)

	case current == string(voteType):
		const deleteQuery = `DELETE FROM votes WHERE subject_id = $1 AND voter_id = $2`
		_, err = tx.Exec(ctx, deleteQuery, subjectID, voterID)
		action = domain.VoteRemoved

	default:
		const updateQuery = `
			UPDATE votes SET vote_type = $3, voted_at = now()
			WHERE subject_id = $1 AND voter_id = $2
		`
		_, err = tx.Exec(ctx, updateQuery, subjectID, voterID, string(voteType))
		action = domain.VoteUpdated
	}
	if err != nil {
		return domain.CastResult{}, classify(fmt.Sprintf("%s vote", action), err)
	}

	tally, err := tallyOf(ctx, tx, subjectID)
	if err != nil {
		return domain.CastResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CastResult{}, classify("commit cast vote", err)
	}

	return domain.CastResult{Action: action, Tally: tally}, nil
}

// Tally aggregates all votes for subjectID.
func (s *VoteStore) Tally(ctx context.Context, subjectID string) (domain.VoteTally, error) {
	start := time.Now()
	tally, err := tallyOf(ctx, s.pool, subjectID)
	observability.RecordDBQuery("postgres", "tally", time.Since(start).Seconds(), err)
	return tally, err
}

func tallyOf(ctx context.Context, q querier, subjectID string) (domain.VoteTally, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE vote_type = 'up'),
			COUNT(*) FILTER (WHERE vote_type = 'down')
		FROM votes
		WHERE subject_id = $1
	`

	var up, down int64
	if err := q.QueryRow(ctx, query, subjectID).Scan(&up, &down); err != nil {
		return domain.VoteTally{}, fmt.Errorf("tally votes: %w", err)
	}
	return domain.NewVoteTally(subjectID, up, down), nil
}

// TallyAll returns tallies for every subject with votes, ordered by subject ID.
func (s *VoteStore) TallyAll(ctx context.Context) ([]domain.VoteTally, error) {
	const query = `
		SELECT
			subject_id,
			COUNT(*) FILTER (WHERE vote_type = 'up'),
			COUNT(*) FILTER (WHERE vote_type = 'down')
		FROM votes
		GROUP BY subject_id
		ORDER BY subject_id
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		observability.RecordDBQuery("postgres", "tally_all", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("query tallies: %w", err)
	}
	defer rows.Close()

	var result []domain.VoteTally
	for rows.Next() {
		var (
			subjectID string
			up, down  int64
		)
		if err := rows.Scan(&subjectID, &up, &down); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		result = append(result, domain.NewVoteTally(subjectID, up, down))
	}
	err = rows.Err()
	observability.RecordDBQuery("postgres", "tally_all", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("iterate tallies: %w", err)
	}
	return result, nil
}

// VotesByVoter returns subjectID -> vote type for the voter.
func (s *VoteStore) VotesByVoter(ctx context.Context, voterID string) (map[string]domain.VoteType, error) {
	const query = `SELECT subject_id, vote_type FROM votes WHERE voter_id = $1`

	rows, err := s.pool.Query(ctx, query, voterID)
	if err != nil {
		return nil, fmt.Errorf("query votes by voter: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.VoteType)
	for rows.Next() {
		var subjectID, voteType string
		if err := rows.Scan(&subjectID, &voteType); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		result[subjectID] = domain.VoteType(voteType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return result, nil
}

// RecentVotes returns up to limit votes on subjectID, newest first.
func (s *VoteStore) RecentVotes(ctx context.Context, subjectID string, limit int) ([]domain.Vote, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	const query = `
		SELECT subject_id, voter_id, vote_type, voted_at
		FROM votes
		WHERE subject_id = $1
		ORDER BY voted_at DESC, voter_id
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent votes: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// scanVotes scans multiple rows into domain.Vote slice.
func scanVotes(rows pgx.Rows) ([]domain.Vote, error) {
	var result []domain.Vote
	for rows.Next() {
		var (
			v        domain.Vote
			voteType string
		)
		if err := rows.Scan(&v.SubjectID, &v.VoterID, &voteType, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.VoteType = domain.VoteType(voteType)
		v.Timestamp = v.Timestamp.UTC()
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return result, nil
}

var _ storage.VoteStore = (*VoteStore)(nil)
