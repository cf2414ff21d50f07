package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/solana"
	"kol-scoreboard/internal/storage"
)

const maxVoteBody = 4 << 10

// castVoteRequest is the body of POST /api/votes.
type castVoteRequest struct {
	SubjectID string `json:"subjectId"`
	VoterID   string `json:"voterId"`
	VoteType  string `json:"voteType"`
}

type tallyResponse struct {
	SubjectID string `json:"subjectId"`
	Upvotes   int64  `json:"upvotes"`
	Downvotes int64  `json:"downvotes"`
	Net       int64  `json:"net"`
}

func newTallyResponse(t domain.VoteTally) tallyResponse {
	return tallyResponse{
		SubjectID: t.SubjectID,
		Upvotes:   t.Upvotes,
		Downvotes: t.Downvotes,
		Net:       t.Net,
	}
}

type castVoteResponse struct {
	Success bool          `json:"success"`
	Action  string        `json:"action"`
	Tally   tallyResponse `json:"tally"`
}

type recentVoter struct {
	Wallet    string `json:"wallet"`
	VoteType  string `json:"voteType"`
	Timestamp string `json:"timestamp"`
}

// validate trims the IDs in place and parses the vote type.
func (r *castVoteRequest) validate(requireWallet bool) (domain.VoteType, *ValidationError) {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.VoterID = strings.TrimSpace(r.VoterID)
	if r.SubjectID == "" {
		return "", missing("subjectId")
	}
	if r.VoterID == "" {
		return "", missing("voterId")
	}
	if r.VoteType == "" {
		return "", missing("voteType")
	}
	vt, err := domain.ParseVoteType(r.VoteType)
	if err != nil {
		return "", &ValidationError{Field: "voteType", Message: "voteType must be up or down"}
	}
	if requireWallet {
		if err := solana.ValidateWallet(r.VoterID); err != nil {
			return "", &ValidationError{Field: "voterId", Message: "voterId must be a Solana wallet address"}
		}
	}
	return vt, nil
}

// admit applies a rate limit bucket to the caller and writes 429 when exhausted.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, bucket string, limit int, window time.Duration) bool {
	key := bucket + ":" + s.clientIP(r)
	if err := s.limiter.Admit(key, limit, window); err != nil {
		s.logger.Debug("rate limited", "key", key, "error", err)
		observability.RecordRateLimited(bucket)
		writeRateLimited(w, err)
		return false
	}
	return true
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "vote", s.limits.VoteLimit, s.limits.VoteWindow) {
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVoteBody)).Decode(&req); err != nil {
		writeValidation(w, &ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	vt, verr := req.validate(s.requireWalletVoter)
	if verr != nil {
		writeValidation(w, verr)
		return
	}

	res, err := s.votes.CastVote(r.Context(), req.SubjectID, req.VoterID, vt)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			writeValidation(w, &ValidationError{Field: "body", Message: "invalid vote"})
			return
		}
		s.logger.Error("cast vote failed",
			"subject_id", req.SubjectID,
			"vote_type", vt,
			"error", err,
		)
		writeInternal(w, "Error recording vote")
		return
	}
	observability.RecordVote(string(res.Action))

	writeJSON(w, http.StatusOK, castVoteResponse{
		Success: true,
		Action:  string(res.Action),
		Tally:   newTallyResponse(res.Tally),
	})
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "read", s.limits.ReadLimit, s.limits.ReadWindow) {
		return
	}
	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	if subjectID == "" {
		writeValidation(w, missing("subjectId"))
		return
	}
	tally, err := s.votes.Tally(r.Context(), subjectID)
	if err != nil {
		s.logger.Error("tally failed", "subject_id", subjectID, "error", err)
		writeInternal(w, "Error fetching votes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tally":   newTallyResponse(tally),
	})
}

func (s *Server) handleVoterVotes(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "read", s.limits.ReadLimit, s.limits.ReadWindow) {
		return
	}
	voterID := strings.TrimSpace(r.URL.Query().Get("voterId"))
	if voterID == "" {
		writeValidation(w, missing("voterId"))
		return
	}
	votes, err := s.votes.VotesByVoter(r.Context(), voterID)
	if err != nil {
		s.logger.Error("voter votes failed", "error", err)
		writeInternal(w, "Error fetching votes")
		return
	}
	out := make(map[string]string, len(votes))
	for subject, vt := range votes {
		out[subject] = vt.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"voterId": voterID,
		"votes":   out,
	})
}

func (s *Server) handleAllTallies(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "read", s.limits.ReadLimit, s.limits.ReadWindow) {
		return
	}
	tallies, err := s.votes.TallyAll(r.Context())
	if err != nil {
		s.logger.Error("tally all failed", "error", err)
		writeInternal(w, "Error fetching votes")
		return
	}
	out := make([]tallyResponse, 0, len(tallies))
	for _, t := range tallies {
		out = append(out, newTallyResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tallies": out,
	})
}

func (s *Server) handleRecentVoters(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "read", s.limits.ReadLimit, s.limits.ReadWindow) {
		return
	}
	q := r.URL.Query()
	subjectID := strings.TrimSpace(q.Get("subjectId"))
	if subjectID == "" {
		writeValidation(w, missing("subjectId"))
		return
	}
	limit := s.recentDefault
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeValidation(w, &ValidationError{Field: "limit", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, s.recentMax)
	}

	votes, err := s.votes.RecentVotes(r.Context(), subjectID, limit)
	if err != nil {
		s.logger.Error("recent votes failed", "subject_id", subjectID, "error", err)
		writeInternal(w, "Error fetching voters")
		return
	}
	voters := make([]recentVoter, 0, len(votes))
	for _, v := range votes {
		voters = append(voters, recentVoter{
			Wallet:    solana.MaskAddress(v.VoterID),
			VoteType:  v.VoteType.String(),
			Timestamp: v.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"voters":  voters,
	})
}
