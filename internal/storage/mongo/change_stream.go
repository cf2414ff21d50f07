package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

const streamBuffer = 256

// changeEvent is the subset of a change stream document used here.
type changeEvent struct {
	OperationType            string    `bson:"operationType"`
	FullDocument             *voteDoc  `bson:"fullDocument"`
	FullDocumentBeforeChange *voteDoc  `bson:"fullDocumentBeforeChange"`
	WallTime                 time.Time `bson:"wallTime"`
}

// mutationFromChange converts a change event. Replace is reported as update.
func mutationFromChange(ev changeEvent) (domain.VoteMutation, error) {
	m := domain.VoteMutation{
		Before: ev.FullDocumentBeforeChange.toDomain(),
		After:  ev.FullDocument.toDomain(),
		At:     ev.WallTime.UTC(),
	}
	switch ev.OperationType {
	case "insert":
		m.Op = domain.MutationInsert
		m.Before = nil
	case "update", "replace":
		m.Op = domain.MutationUpdate
	case "delete":
		m.Op = domain.MutationDelete
		m.After = nil
	default:
		return domain.VoteMutation{}, fmt.Errorf("unsupported change %q", ev.OperationType)
	}

	if m.Op != domain.MutationDelete && m.After == nil {
		return domain.VoteMutation{}, fmt.Errorf("%s change without post-image", ev.OperationType)
	}
	if m.Op == domain.MutationDelete && m.Before == nil {
		return domain.VoteMutation{}, fmt.Errorf("delete change without pre-image")
	}
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	return m, nil
}

// WatchMutations opens a change stream on the votes collection.
// Pre-images must be enabled (see EnsureSchema) for deletes to carry the removed vote.
func (s *VoteStore) WatchMutations(ctx context.Context) (storage.MutationSubscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.WhenAvailable).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := s.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("open change stream: %w", err)
	}

	feed, feedCtx := storage.NewFeed(ctx, streamBuffer)
	go func() {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = stream.Close(closeCtx)
			cancel()
		}()

		for stream.Next(feedCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				observability.RecordBridgeError()
				slog.Warn("skipping vote change", "error", err)
				continue
			}
			m, err := mutationFromChange(ev)
			if err != nil {
				observability.RecordBridgeError()
				slog.Warn("skipping vote change", "error", err)
				continue
			}
			if !feed.Send(feedCtx, m) {
				feed.Finish(nil)
				return
			}
		}

		if feedCtx.Err() != nil {
			feed.Finish(nil)
			return
		}
		feed.Finish(fmt.Errorf("change stream: %w", stream.Err()))
	}()
	return feed, nil
}

var _ storage.MutationSource = (*VoteStore)(nil)
