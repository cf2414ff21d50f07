package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kol-scoreboard/internal/domain"
)

func TestFeed_ProducerLifecycle(t *testing.T) {
	feed, ctx := NewFeed(context.Background(), 1)

	go func() {
		for {
			if !feed.Send(ctx, domain.VoteMutation{Op: domain.MutationInsert}) {
				feed.Finish(nil)
				return
			}
		}
	}()

	m := <-feed.Mutations()
	assert.Equal(t, domain.MutationInsert, m.Op)

	assert.NoError(t, feed.Close())
	for range feed.Mutations() {
	}
	assert.NoError(t, feed.Err())
}

func TestFeed_ProducerError(t *testing.T) {
	feed, _ := NewFeed(context.Background(), 1)
	boom := errors.New("connection lost")

	go feed.Finish(boom)

	select {
	case _, ok := <-feed.Mutations():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("feed not finished")
	}
	assert.ErrorIs(t, feed.Err(), boom)
	assert.NoError(t, feed.Close())
}
