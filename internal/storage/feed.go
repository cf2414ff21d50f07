package storage

import (
	"context"
	"sync"

	"kol-scoreboard/internal/domain"
)

// Feed is a MutationSubscription driven by a single producer goroutine.
// The producer sends with Send and calls Finish exactly once when it stops.
type Feed struct {
	ch     chan domain.VoteMutation
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewFeed creates a feed and the context its producer must observe.
func NewFeed(ctx context.Context, buffer int) (*Feed, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Feed{
		ch:     make(chan domain.VoteMutation, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Send delivers m, blocking until the consumer receives it or ctx ends.
func (f *Feed) Send(ctx context.Context, m domain.VoteMutation) bool {
	select {
	case f.ch <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish records the terminal error and closes the channel. Producer only.
func (f *Feed) Finish(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.ch)
	close(f.done)
}

// Mutations delivers mutations in commit order.
func (f *Feed) Mutations() <-chan domain.VoteMutation {
	return f.ch
}

// Err returns the error that ended the feed.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close stops the producer and waits for it to exit.
func (f *Feed) Close() error {
	f.cancel()
	<-f.done
	return nil
}

var _ MutationSubscription = (*Feed)(nil)
