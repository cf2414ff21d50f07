package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/solana"
	"kol-scoreboard/internal/storage"
)

const maxCommunityBody = 8 << 10

type commentRequest struct {
	SubjectID    string `json:"subjectId"`
	AuthorWallet string `json:"authorWallet"`
	Message      string `json:"message"`
}

type commentResponse struct {
	ID           string `json:"id"`
	SubjectID    string `json:"subjectId"`
	AuthorWallet string `json:"authorWallet"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
}

func newCommentResponse(c domain.Comment) commentResponse {
	return commentResponse{
		ID:           c.ID,
		SubjectID:    c.SubjectID,
		AuthorWallet: c.AuthorWallet,
		Message:      c.Message,
		Timestamp:    c.Timestamp.UTC().Format(time.RFC3339),
	}
}

type noteRequest struct {
	SubjectID       string `json:"subjectId"`
	SubmitterWallet string `json:"submitterWallet"`
	Note            string `json:"note"`
}

func (s *Server) checkWallet(field, wallet string) *ValidationError {
	if !s.requireWalletVoter {
		return nil
	}
	if err := solana.ValidateWallet(wallet); err != nil {
		return &ValidationError{Field: field, Message: field + " must be a Solana wallet address"}
	}
	return nil
}

func (r *commentRequest) validate() *ValidationError {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.AuthorWallet = strings.TrimSpace(r.AuthorWallet)
	r.Message = strings.TrimSpace(r.Message)
	switch {
	case r.SubjectID == "":
		return missing("subjectId")
	case r.AuthorWallet == "":
		return missing("authorWallet")
	case r.Message == "":
		return missing("message")
	}
	return nil
}

func (r *noteRequest) validate() *ValidationError {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.SubmitterWallet = strings.TrimSpace(r.SubmitterWallet)
	r.Note = strings.TrimSpace(r.Note)
	switch {
	case r.SubjectID == "":
		return missing("subjectId")
	case r.SubmitterWallet == "":
		return missing("submitterWallet")
	case r.Note == "":
		return missing("note")
	case utf8.RuneCountInString(r.Note) > domain.MaxNoteLength:
		return &ValidationError{Field: "note", Message: "note must be 200 characters or less"}
	}
	return nil
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "read", s.limits.ReadLimit, s.limits.ReadWindow) {
		return
	}
	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	if subjectID == "" {
		writeValidation(w, missing("subjectId"))
		return
	}

	comments, err := s.comments.Comments(r.Context(), subjectID, domain.CommentPageSize)
	if err != nil {
		s.logger.Error("list comments failed", "subject_id", subjectID, "error", err)
		writeInternal(w, "Error fetching comments")
		return
	}

	out := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, newCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "comments": out})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "comment", s.limits.VoteLimit, s.limits.VoteWindow) {
		return
	}

	var req commentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommunityBody)).Decode(&req); err != nil {
		writeValidation(w, &ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if verr := req.validate(); verr != nil {
		writeValidation(w, verr)
		return
	}
	if verr := s.checkWallet("authorWallet", req.AuthorWallet); verr != nil {
		writeValidation(w, verr)
		return
	}

	c := &domain.Comment{SubjectID: req.SubjectID, AuthorWallet: req.AuthorWallet, Message: req.Message}
	err := s.comments.AddComment(r.Context(), c)
	switch {
	case errors.Is(err, storage.ErrLimitReached):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "Comment limit reached (3 per KOL)"})
		return
	case err != nil:
		s.logger.Error("add comment failed", "subject_id", req.SubjectID, "error", err)
		writeInternal(w, "Error posting comment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "comment": newCommentResponse(*c)})
}

func (s *Server) handleSubmitNote(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "note", s.limits.VoteLimit, s.limits.VoteWindow) {
		return
	}

	var req noteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommunityBody)).Decode(&req); err != nil {
		writeValidation(w, &ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if verr := req.validate(); verr != nil {
		writeValidation(w, verr)
		return
	}
	if verr := s.checkWallet("submitterWallet", req.SubmitterWallet); verr != nil {
		writeValidation(w, verr)
		return
	}

	n := &domain.Note{SubjectID: req.SubjectID, SubmitterWallet: req.SubmitterWallet, Text: req.Note}
	err := s.notes.SubmitNote(r.Context(), n)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		writeValidation(w, &ValidationError{Field: "submitterWallet", Message: "You have already submitted a note for this KOL"})
		return
	case err != nil:
		s.logger.Error("submit note failed", "subject_id", req.SubjectID, "error", err)
		writeInternal(w, "Error submitting note")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Community note submitted for review",
		"status":  string(n.Status),
	})
}
