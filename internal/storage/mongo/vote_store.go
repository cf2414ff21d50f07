package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// voteDoc is the stored form of a vote.
type voteDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SubjectID string             `bson:"subject_id"`
	VoterID   string             `bson:"voter_id"`
	VoteType  string             `bson:"vote_type"`
	VotedAt   time.Time          `bson:"voted_at"`
}

func (d *voteDoc) toDomain() *domain.Vote {
	if d == nil {
		return nil
	}
	return &domain.Vote{
		SubjectID: d.SubjectID,
		VoterID:   d.VoterID,
		VoteType:  domain.VoteType(d.VoteType),
		Timestamp: d.VotedAt.UTC(),
	}
}

// VoteStore is a MongoDB implementation of storage.VoteStore.
// Writes are compare-and-set on the pair document; a lost race surfaces as
// ErrContention and is retried.
type VoteStore struct {
	coll    *mongo.Collection
	retries int
	now     func() time.Time
}

// NewVoteStore creates a vote store over coll. Call EnsureSchema first.
func NewVoteStore(coll *mongo.Collection) *VoteStore {
	return &VoteStore{
		coll:    coll,
		retries: storage.DefaultContentionRetries,
		now: func() time.Time {
			// BSON dates carry millisecond precision.
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

// CastVote inserts, flips or toggles off the voter's vote on subjectID.
func (s *VoteStore) CastVote(ctx context.Context, subjectID, voterID string, voteType domain.VoteType) (domain.CastResult, error) {
	if subjectID == "" || voterID == "" || !voteType.IsValid() {
		return domain.CastResult{}, storage.ErrInvalidInput
	}

	var action domain.VoteAction
	start := time.Now()
	err := storage.RetryOnContention(ctx, s.retries, func(int) {
		observability.RecordStoreRetry("mongo")
	}, func() error {
		var err error
		action, err = s.castOnce(ctx, subjectID, voterID, voteType)
		return err
	})
	observability.RecordDBQuery("mongo", "cast_vote", time.Since(start).Seconds(), err)
	if err != nil {
		return domain.CastResult{}, err
	}

	tally, err := s.Tally(ctx, subjectID)
	if err != nil {
		return domain.CastResult{}, err
	}
	return domain.CastResult{Action: action, Tally: tally}, nil
}

func (s *VoteStore) castOnce(ctx context.Context, subjectID, voterID string, voteType domain.VoteType) (domain.VoteAction, error) {
	var existing voteDoc
	err := s.coll.FindOne(ctx, bson.M{keySubjectID: subjectID, keyVoterID: voterID}).Decode(&existing)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		_, err := s.coll.InsertOne(ctx, voteDoc{
			SubjectID: subjectID,
			VoterID:   voterID,
			VoteType:  string(voteType),
			VotedAt:   s.now(),
		})
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("insert vote: %w", storage.ErrContention)
		}
		if err != nil {
			return "", fmt.Errorf("insert vote: %w", err)
		}
		return domain.VoteInserted, nil
	case err != nil:
		return "", fmt.Errorf("find vote: %w", err)
	}

	// The filter pins the observed state so a concurrent writer makes this a no-op.
	observed := bson.M{"_id": existing.ID, keyVoteType: existing.VoteType, keyVotedAt: existing.VotedAt}

	if existing.VoteType == string(voteType) {
		res, err := s.coll.DeleteOne(ctx, observed)
		if err != nil {
			return "", fmt.Errorf("delete vote: %w", err)
		}
		if res.DeletedCount == 0 {
			return "", fmt.Errorf("delete vote: %w", storage.ErrContention)
		}
		return domain.VoteRemoved, nil
	}

	res, err := s.coll.UpdateOne(ctx, observed, bson.M{"$set": bson.M{
		keyVoteType: string(voteType),
		keyVotedAt:  s.now(),
	}})
	if err != nil {
		return "", fmt.Errorf("update vote: %w", err)
	}
	if res.MatchedCount == 0 {
		return "", fmt.Errorf("update vote: %w", storage.ErrContention)
	}
	return domain.VoteUpdated, nil
}

// tallyRow is one $group output row.
type tallyRow struct {
	SubjectID string `bson:"_id"`
	Up        int64  `bson:"up"`
	Down      int64  `bson:"down"`
}

func countOf(voteType domain.VoteType) bson.M {
	return bson.M{"$sum": bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$" + keyVoteType, string(voteType)}}, 1, 0,
	}}}
}

func (s *VoteStore) aggregateTallies(ctx context.Context, match bson.M) ([]tallyRow, error) {
	pipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id":  "$" + keySubjectID,
			"up":   countOf(domain.VoteUp),
			"down": countOf(domain.VoteDown),
		}},
		bson.M{"$sort": bson.M{"_id": 1}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate tallies: %w", err)
	}
	var rows []tallyRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode tallies: %w", err)
	}
	return rows, nil
}

// Tally aggregates all votes for subjectID.
func (s *VoteStore) Tally(ctx context.Context, subjectID string) (domain.VoteTally, error) {
	rows, err := s.aggregateTallies(ctx, bson.M{keySubjectID: subjectID})
	if err != nil {
		return domain.VoteTally{}, err
	}
	if len(rows) == 0 {
		return domain.NewVoteTally(subjectID, 0, 0), nil
	}
	return domain.NewVoteTally(subjectID, rows[0].Up, rows[0].Down), nil
}

// TallyAll returns tallies for every voted subject ordered by subject ID.
func (s *VoteStore) TallyAll(ctx context.Context) ([]domain.VoteTally, error) {
	rows, err := s.aggregateTallies(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.VoteTally, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.NewVoteTally(r.SubjectID, r.Up, r.Down))
	}
	// Server collation may differ from byte order.
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// VotesByVoter returns subjectID -> vote type for the voter.
func (s *VoteStore) VotesByVoter(ctx context.Context, voterID string) (map[string]domain.VoteType, error) {
	cur, err := s.coll.Find(ctx, bson.M{keyVoterID: voterID})
	if err != nil {
		return nil, fmt.Errorf("find votes by voter: %w", err)
	}
	var docs []voteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode votes by voter: %w", err)
	}

	out := make(map[string]domain.VoteType, len(docs))
	for _, d := range docs {
		out[d.SubjectID] = domain.VoteType(d.VoteType)
	}
	return out, nil
}

// RecentVotes returns up to limit votes on subjectID, newest first.
func (s *VoteStore) RecentVotes(ctx context.Context, subjectID string, limit int) ([]domain.Vote, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	opts := options.Find().
		SetSort(bson.D{{Key: keyVotedAt, Value: -1}, {Key: keyVoterID, Value: 1}}).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{keySubjectID: subjectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent votes: %w", err)
	}
	var docs []voteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode recent votes: %w", err)
	}

	out := make([]domain.Vote, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toDomain())
	}
	return out, nil
}

var _ storage.VoteStore = (*VoteStore)(nil)
