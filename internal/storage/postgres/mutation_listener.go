package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// VoteMutationChannel is the NOTIFY channel written by the votes trigger.
const VoteMutationChannel = "vote_mutations"

const listenerBuffer = 256

// voteRow mirrors row_to_json(votes).
type voteRow struct {
	SubjectID string    `json:"subject_id"`
	VoterID   string    `json:"voter_id"`
	VoteType  string    `json:"vote_type"`
	VotedAt   time.Time `json:"voted_at"`
}

func (r *voteRow) toDomain() *domain.Vote {
	if r == nil {
		return nil
	}
	return &domain.Vote{
		SubjectID: r.SubjectID,
		VoterID:   r.VoterID,
		VoteType:  domain.VoteType(r.VoteType),
		Timestamp: r.VotedAt.UTC(),
	}
}

// notifyPayload is the JSON document published by notify_vote_mutation().
type notifyPayload struct {
	Op  string    `json:"op"`
	Old *voteRow  `json:"old"`
	New *voteRow  `json:"new"`
	At  time.Time `json:"at"`
}

// decodeMutation parses a trigger payload.
func decodeMutation(payload string) (domain.VoteMutation, error) {
	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.VoteMutation{}, fmt.Errorf("decode notification: %w", err)
	}

	m := domain.VoteMutation{
		Op:     domain.MutationOp(p.Op),
		Before: p.Old.toDomain(),
		After:  p.New.toDomain(),
		At:     p.At.UTC(),
	}
	switch m.Op {
	case domain.MutationInsert, domain.MutationUpdate:
		if m.After == nil {
			return domain.VoteMutation{}, fmt.Errorf("decode notification: %s without new row", m.Op)
		}
	case domain.MutationDelete:
		if m.Before == nil {
			return domain.VoteMutation{}, fmt.Errorf("decode notification: delete without old row")
		}
	default:
		return domain.VoteMutation{}, fmt.Errorf("decode notification: unknown op %q", p.Op)
	}
	return m, nil
}

// WatchMutations holds one pooled connection in LISTEN mode for the subscription's lifetime.
// Notifications are delivered only after the writing transaction commits.
func (s *VoteStore) WatchMutations(ctx context.Context) (storage.MutationSubscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+VoteMutationChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", VoteMutationChannel, err)
	}

	feed, feedCtx := storage.NewFeed(ctx, listenerBuffer)
	go func() {
		defer func() {
			// A cancelled wait closes the connection; a live one must stop listening before reuse.
			if !conn.Conn().IsClosed() {
				unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_, _ = conn.Exec(unlistenCtx, "UNLISTEN *")
				cancel()
			}
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(feedCtx)
			if err != nil {
				if feedCtx.Err() != nil {
					feed.Finish(nil)
				} else {
					feed.Finish(fmt.Errorf("wait for notification: %w", err))
				}
				return
			}

			m, err := decodeMutation(n.Payload)
			if err != nil {
				observability.RecordBridgeError()
				slog.Warn("skipping vote notification", "channel", n.Channel, "error", err)
				continue
			}
			if !feed.Send(feedCtx, m) {
				feed.Finish(nil)
				return
			}
		}
	}()
	return feed, nil
}

var _ storage.MutationSource = (*VoteStore)(nil)
