package broadcast

import (
	"context"
	"log/slog"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/storage"
)

// TallyReader reads the current tally of a subject.
type TallyReader interface {
	Tally(ctx context.Context, subjectID string) (domain.VoteTally, error)
}

// BridgeConfig configures re-subscription after a failed mutation stream.
type BridgeConfig struct {
	// ReconnectDelay is the initial delay before re-subscribing.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the doubling backoff.
	MaxReconnectDelay time.Duration
}

// DefaultBridgeConfig returns default bridge configuration.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// Bridge turns committed vote mutations into broadcast events.
// It observes the store's change feed, never the request that caused the change.
type Bridge struct {
	source  storage.MutationSource
	tallies TallyReader
	hub     *Hub
	config  BridgeConfig
	logger  *slog.Logger
}

// NewBridge creates a bridge. A nil config uses DefaultBridgeConfig.
func NewBridge(source storage.MutationSource, tallies TallyReader, hub *Hub, config *BridgeConfig, logger *slog.Logger) *Bridge {
	cfg := DefaultBridgeConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		source:  source,
		tallies: tallies,
		hub:     hub,
		config:  cfg,
		logger:  logger,
	}
}

// Run consumes mutations until ctx is done, re-subscribing with exponential
// backoff whenever the feed ends with an error. Mutations committed while
// disconnected are not replayed. Returns nil on cancellation.
func (b *Bridge) Run(ctx context.Context) error {
	delay := b.config.ReconnectDelay

	for {
		sub, err := b.source.WatchMutations(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			observability.RecordBridgeError()
			b.logger.Error("watch vote mutations", "error", err, "retry_in", delay)
		} else {
			b.logger.Info("watching vote mutations")
			if b.consume(ctx, sub) {
				delay = b.config.ReconnectDelay
			}
			subErr := sub.Err()
			_ = sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			observability.RecordBridgeError()
			b.logger.Warn("vote mutation feed ended", "error", subErr, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > b.config.MaxReconnectDelay {
			delay = b.config.MaxReconnectDelay
		}
	}
}

// consume drains sub until it closes. Reports whether any mutation arrived.
func (b *Bridge) consume(ctx context.Context, sub storage.MutationSubscription) bool {
	received := false
	for m := range sub.Mutations() {
		received = true
		b.handle(ctx, m)
	}
	return received
}

func (b *Bridge) handle(ctx context.Context, m domain.VoteMutation) {
	observability.RecordMutation(string(m.Op))

	event, ok, err := b.eventFor(ctx, m)
	if err != nil {
		observability.RecordBridgeError()
		b.logger.Warn("skipping vote mutation", "op", m.Op, "error", err)
		return
	}
	if !ok {
		return
	}
	b.hub.Publish(event)
}

// eventFor builds the broadcast for m. Deletes are described from the pre-image.
func (b *Bridge) eventFor(ctx context.Context, m domain.VoteMutation) (domain.BroadcastEvent, bool, error) {
	vote, ok := m.Subject()
	if !ok {
		return domain.BroadcastEvent{}, false, nil
	}

	tally, err := b.tallies.Tally(ctx, vote.SubjectID)
	if err != nil {
		return domain.BroadcastEvent{}, false, err
	}

	voteType := string(vote.VoteType)
	if m.Op == domain.MutationDelete {
		voteType = domain.BroadcastEventRemoved
	}
	at := m.At
	if at.IsZero() {
		at = vote.Timestamp
	}

	return domain.BroadcastEvent{
		SubjectID: vote.SubjectID,
		VoterID:   vote.VoterID,
		VoteType:  voteType,
		Net:       tally.Net,
		Upvotes:   tally.Upvotes,
		Downvotes: tally.Downvotes,
		Timestamp: at.UTC(),
	}, true, nil
}
