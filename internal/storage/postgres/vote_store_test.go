package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/storage"
)

func TestVoteStore_ToggleLaw(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	res, err := store.CastVote(ctx, "kol1", "voter1", domain.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteInserted, res.Action)
	assert.Equal(t, domain.NewVoteTally("kol1", 1, 0), res.Tally)

	res, err = store.CastVote(ctx, "kol1", "voter1", domain.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteUpdated, res.Action)
	assert.Equal(t, domain.NewVoteTally("kol1", 0, 1), res.Tally)

	res, err = store.CastVote(ctx, "kol1", "voter1", domain.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, domain.VoteRemoved, res.Action)
	assert.Equal(t, domain.NewVoteTally("kol1", 0, 0), res.Tally)
}

func TestVoteStore_Reads(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	_, err := store.CastVote(ctx, "kolA", "voter1", domain.VoteUp)
	require.NoError(t, err)
	_, err = store.CastVote(ctx, "kolB", "voter1", domain.VoteDown)
	require.NoError(t, err)
	_, err = store.CastVote(ctx, "kolA", "voter2", domain.VoteUp)
	require.NoError(t, err)

	tally, err := store.Tally(ctx, "kolA")
	require.NoError(t, err)
	assert.Equal(t, domain.NewVoteTally("kolA", 2, 0), tally)

	all, err := store.TallyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.VoteTally{
		domain.NewVoteTally("kolA", 2, 0),
		domain.NewVoteTally("kolB", 0, 1),
	}, all)

	votes, err := store.VotesByVoter(ctx, "voter1")
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.VoteType{"kolA": domain.VoteUp, "kolB": domain.VoteDown}, votes)

	recent, err := store.RecentVotes(ctx, "kolA", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "voter2", recent[0].VoterID)

	_, err = store.RecentVotes(ctx, "kolA", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestVoteStore_ConcurrentSamePair(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()
	const n = 9

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CastVote(ctx, "kol1", "voter1", domain.VoteUp)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, storage.ErrContention)
			failed++
		}
	}

	// Every successful cast toggled the single row exactly once.
	tally, err := store.Tally(ctx, "kol1")
	require.NoError(t, err)
	assert.Equal(t, int64((n-failed)%2), tally.Upvotes)
}

func TestVoteStore_ConcurrentDistinctSubjects(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.CastVote(ctx, fmt.Sprintf("kol%d", i), "voter1", domain.VoteUp)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		tally, err := store.Tally(ctx, fmt.Sprintf("kol%d", i))
		require.NoError(t, err)
		assert.Equal(t, domain.NewVoteTally(fmt.Sprintf("kol%d", i), 1, 0), tally)
	}
}

func TestVoteStore_WatchMutations(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewVoteStore(pool)
	ctx := context.Background()

	sub, err := store.WatchMutations(ctx)
	require.NoError(t, err)
	defer sub.Close()

	_, err = store.CastVote(ctx, "kol1", "voter1", domain.VoteUp)
	require.NoError(t, err)
	_, err = store.CastVote(ctx, "kol1", "voter1", domain.VoteUp)
	require.NoError(t, err)

	next := func() domain.VoteMutation {
		select {
		case m, ok := <-sub.Mutations():
			require.True(t, ok, "subscription closed: %v", sub.Err())
			return m
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for notification")
			return domain.VoteMutation{}
		}
	}

	ins := next()
	assert.Equal(t, domain.MutationInsert, ins.Op)
	require.NotNil(t, ins.After)
	assert.Equal(t, "kol1", ins.After.SubjectID)

	del := next()
	assert.Equal(t, domain.MutationDelete, del.Op)
	require.NotNil(t, del.Before)
	assert.Equal(t, "kol1", del.Before.SubjectID)
	assert.Equal(t, "voter1", del.Before.VoterID)
	assert.Equal(t, domain.VoteUp, del.Before.VoteType)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Err())
}

func TestDecodeMutation(t *testing.T) {
	payload := `{"op":"delete","old":{"id":"6f1c7f2e-8a44-4c1b-9a51-0d1e2f3a4b5c","subject_id":"kol1","voter_id":"voter1","vote_type":"down","voted_at":"2026-01-02T03:04:05.123456+00:00"},"new":null,"at":"2026-01-02T03:04:06.5+00:00"}`

	m, err := decodeMutation(payload)
	require.NoError(t, err)

	assert.Equal(t, domain.MutationDelete, m.Op)
	assert.Nil(t, m.After)
	require.NotNil(t, m.Before)
	assert.Equal(t, "kol1", m.Before.SubjectID)
	assert.Equal(t, domain.VoteDown, m.Before.VoteType)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC), m.Before.Timestamp)
}

func TestDecodeMutation_Invalid(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"op":"truncate"}`,
		`{"op":"insert","old":null,"new":null}`,
		`{"op":"delete","old":null,"new":null}`,
	} {
		_, err := decodeMutation(payload)
		assert.Error(t, err, payload)
	}
}
