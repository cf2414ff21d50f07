package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/storage"
)

// mutationBuffer is the per-subscription backlog before it is terminated.
const mutationBuffer = 1024

// ErrSubscriberLagging ends a subscription whose consumer fell behind.
var ErrSubscriberLagging = errors.New("mutation subscriber lagging: buffer full")

type pairKey struct {
	subjectID string
	voterID   string
}

func (k pairKey) String() string {
	return k.subjectID + "\x00" + k.voterID
}

type voteRow struct {
	id   uuid.UUID
	vote domain.Vote
}

// VoteStore is an in-memory implementation of storage.VoteStore and storage.MutationSource.
type VoteStore struct {
	mu        sync.RWMutex
	votes     map[pairKey]*voteRow
	bySubject map[string]map[string]struct{} // subject_id -> voter_ids

	pairs *keyedMutex
	now   func() time.Time

	watchMu  sync.Mutex
	watchers map[*mutationSubscription]struct{}
}

// NewVoteStore creates a new in-memory vote store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		votes:     make(map[pairKey]*voteRow),
		bySubject: make(map[string]map[string]struct{}),
		pairs:     newKeyedMutex(),
		now:       time.Now,
		watchers:  make(map[*mutationSubscription]struct{}),
	}
}

// CastVote inserts, flips or toggles off the voter's vote on subjectID.
// Calls on the same pair are serialized; other pairs proceed in parallel.
func (s *VoteStore) CastVote(_ context.Context, subjectID, voterID string, voteType domain.VoteType) (domain.CastResult, error) {
	if subjectID == "" || voterID == "" || !voteType.IsValid() {
		return domain.CastResult{}, storage.ErrInvalidInput
	}

	key := pairKey{subjectID: subjectID, voterID: voterID}
	unlock := s.pairs.Lock(key.String())
	defer unlock()

	now := s.now().UTC()
	mutation := domain.VoteMutation{At: now}
	var action domain.VoteAction

	s.mu.Lock()
	existing, ok := s.votes[key]
	switch {
	case !ok:
		row := &voteRow{
			id:   uuid.New(),
			vote: domain.Vote{SubjectID: subjectID, VoterID: voterID, VoteType: voteType, Timestamp: now},
		}
		s.votes[key] = row
		voters := s.bySubject[subjectID]
		if voters == nil {
			voters = make(map[string]struct{})
			s.bySubject[subjectID] = voters
		}
		voters[voterID] = struct{}{}
		after := row.vote
		mutation.Op, mutation.After = domain.MutationInsert, &after
		action = domain.VoteInserted

	case existing.vote.VoteType == voteType:
		before := existing.vote
		delete(s.votes, key)
		delete(s.bySubject[subjectID], voterID)
		if len(s.bySubject[subjectID]) == 0 {
			delete(s.bySubject, subjectID)
		}
		mutation.Op, mutation.Before = domain.MutationDelete, &before
		action = domain.VoteRemoved

	default:
		before := existing.vote
		existing.vote.VoteType = voteType
		existing.vote.Timestamp = now
		after := existing.vote
		mutation.Op, mutation.Before, mutation.After = domain.MutationUpdate, &before, &after
		action = domain.VoteUpdated
	}
	tally := s.tallyLocked(subjectID)
	s.mu.Unlock()

	// Emitted under the pair lock so per-pair order matches commit order.
	s.emit(mutation)

	return domain.CastResult{Action: action, Tally: tally}, nil
}

// Tally aggregates all votes for subjectID.
func (s *VoteStore) Tally(_ context.Context, subjectID string) (domain.VoteTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tallyLocked(subjectID), nil
}

func (s *VoteStore) tallyLocked(subjectID string) domain.VoteTally {
	var up, down int64
	for voterID := range s.bySubject[subjectID] {
		row := s.votes[pairKey{subjectID: subjectID, voterID: voterID}]
		if row == nil {
			continue
		}
		switch row.vote.VoteType {
		case domain.VoteUp:
			up++
		case domain.VoteDown:
			down++
		}
	}
	return domain.NewVoteTally(subjectID, up, down)
}

// TallyAll returns tallies for every subject with votes, ordered by subject ID.
func (s *VoteStore) TallyAll(_ context.Context) ([]domain.VoteTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.VoteTally, 0, len(s.bySubject))
	for subjectID := range s.bySubject {
		result = append(result, s.tallyLocked(subjectID))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubjectID < result[j].SubjectID
	})
	return result, nil
}

// VotesByVoter returns subjectID -> vote type for the voter.
func (s *VoteStore) VotesByVoter(_ context.Context, voterID string) (map[string]domain.VoteType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.VoteType)
	for key, row := range s.votes {
		if key.voterID == voterID {
			result[key.subjectID] = row.vote.VoteType
		}
	}
	return result, nil
}

// RecentVotes returns up to limit votes on subjectID, newest first.
func (s *VoteStore) RecentVotes(_ context.Context, subjectID string, limit int) ([]domain.Vote, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	result := make([]domain.Vote, 0, len(s.bySubject[subjectID]))
	for voterID := range s.bySubject[subjectID] {
		if row := s.votes[pairKey{subjectID: subjectID, voterID: voterID}]; row != nil {
			result = append(result, row.vote)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].VoterID < result[j].VoterID
		}
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// WatchMutations subscribes to mutations committed after the call.
func (s *VoteStore) WatchMutations(ctx context.Context) (storage.MutationSubscription, error) {
	sub := &mutationSubscription{
		store: s,
		ch:    make(chan domain.VoteMutation, mutationBuffer),
		done:  make(chan struct{}),
	}

	s.watchMu.Lock()
	s.watchers[sub] = struct{}{}
	s.watchMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// WatcherCount returns the number of live mutation subscriptions.
func (s *VoteStore) WatcherCount() int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return len(s.watchers)
}

func (s *VoteStore) emit(m domain.VoteMutation) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for sub := range s.watchers {
		select {
		case sub.ch <- m:
		default:
			s.removeLocked(sub, ErrSubscriberLagging)
		}
	}
}

// removeLocked detaches sub and closes its channels. Caller holds watchMu.
func (s *VoteStore) removeLocked(sub *mutationSubscription, err error) {
	if _, ok := s.watchers[sub]; !ok {
		return
	}
	delete(s.watchers, sub)
	sub.err = err
	close(sub.ch)
	close(sub.done)
}

// mutationSubscription is returned by VoteStore.WatchMutations.
type mutationSubscription struct {
	store *VoteStore
	ch    chan domain.VoteMutation
	done  chan struct{}
	err   error // guarded by store.watchMu
}

// Mutations delivers mutations in commit order.
func (m *mutationSubscription) Mutations() <-chan domain.VoteMutation {
	return m.ch
}

// Err returns the error that ended the subscription.
func (m *mutationSubscription) Err() error {
	m.store.watchMu.Lock()
	defer m.store.watchMu.Unlock()
	return m.err
}

// Close ends the subscription. Idempotent.
func (m *mutationSubscription) Close() error {
	m.store.watchMu.Lock()
	defer m.store.watchMu.Unlock()
	m.store.removeLocked(m, nil)
	return nil
}

var (
	_ storage.VoteStore      = (*VoteStore)(nil)
	_ storage.MutationSource = (*VoteStore)(nil)
)
