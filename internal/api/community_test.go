package api

import (
	"crypto/ed25519"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kol-scoreboard/internal/domain"
)

type commentsResponse struct {
	Success  bool              `json:"success"`
	Comments []commentResponse `json:"comments"`
}

type addCommentResponse struct {
	Success bool            `json:"success"`
	Comment commentResponse `json:"comment"`
}

func TestComments_PostThenList(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/comments", `{"subjectId":" kol1 ","authorWallet":"w1","message":"  solid entries  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	posted := decode[addCommentResponse](t, rec)
	assert.True(t, posted.Success)
	assert.NotEmpty(t, posted.Comment.ID)
	assert.Equal(t, "kol1", posted.Comment.SubjectID)
	assert.Equal(t, "solid entries", posted.Comment.Message)

	rec = f.do(t, http.MethodGet, "/api/comments?subjectId=kol1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[commentsResponse](t, rec)
	assert.True(t, got.Success)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, posted.Comment, got.Comments[0])

	rec = f.do(t, http.MethodGet, "/api/comments?subjectId=nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[commentsResponse](t, rec).Comments)
}

func TestComments_LimitPerAuthor(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"subjectId":"kol1","authorWallet":"w1","message":"again"}`

	for range domain.MaxCommentsPerAuthor {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/comments", body).Code)
	}
	rec := f.do(t, http.MethodPost, "/api/comments", body)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Message, "Comment limit reached")
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestComments_TruncatesLongMessage(t *testing.T) {
	f := newFixture(t, nil)
	long := strings.Repeat("a", domain.MaxCommentLength+50)

	rec := f.do(t, http.MethodPost, "/api/comments", `{"subjectId":"kol1","authorWallet":"w1","message":"`+long+`"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[addCommentResponse](t, rec).Comment.Message, domain.MaxCommentLength)
}

func TestComments_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed", `{`, "body"},
		{"missing subject", `{"authorWallet":"w","message":"m"}`, "subjectId"},
		{"missing author", `{"subjectId":"s","message":"m"}`, "authorWallet"},
		{"blank message", `{"subjectId":"s","authorWallet":"w","message":"   "}`, "message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(t, http.MethodPost, "/api/comments", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode[errorResponse](t, rec).Field)
		})
	}

	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/comments", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "subjectId", decode[errorResponse](t, rec).Field)
}

func TestComments_RequireWallet(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RequireWalletVoter = true })

	rec := f.do(t, http.MethodPost, "/api/comments", `{"subjectId":"s","authorWallet":"nope","message":"m"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "authorWallet", decode[errorResponse](t, rec).Field)

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/comments", `{"subjectId":"s","authorWallet":"`+base58.Encode(pub)+`","message":"m"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestComments_RateLimited(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Limits = &Limits{VoteLimit: 1, VoteWindow: time.Minute, ReadLimit: 30, ReadWindow: time.Minute}
	})

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/comments", `{"subjectId":"s","authorWallet":"w","message":"m"}`).Code)
	rec := f.do(t, http.MethodPost, "/api/comments", `{"subjectId":"s","authorWallet":"w2","message":"m"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Votes keep their own bucket.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/votes", `{"subjectId":"s","voterId":"v","voteType":"up"}`).Code)
}

func TestNotes_Submit(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/notes", `{"subjectId":"kol1","submitterWallet":"w1","note":" runs bundled launches "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}](t, rec)
	assert.True(t, got.Success)
	assert.Equal(t, "Community note submitted for review", got.Message)
	assert.Equal(t, "pending", got.Status)

	rec = f.do(t, http.MethodPost, "/api/notes", `{"subjectId":"kol1","submitterWallet":"w1","note":"second"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	dup := decode[errorResponse](t, rec)
	assert.Equal(t, "submitterWallet", dup.Field)
	assert.Equal(t, "You have already submitted a note for this KOL", dup.Message)
}

func TestNotes_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed", `{`, "body"},
		{"missing subject", `{"submitterWallet":"w","note":"n"}`, "subjectId"},
		{"missing submitter", `{"subjectId":"s","note":"n"}`, "submitterWallet"},
		{"missing note", `{"subjectId":"s","submitterWallet":"w"}`, "note"},
		{"too long", `{"subjectId":"s","submitterWallet":"w","note":"` + strings.Repeat("n", domain.MaxNoteLength+1) + `"}`, "note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			rec := f.do(t, http.MethodPost, "/api/notes", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode[errorResponse](t, rec).Field)
		})
	}
}

func TestCommunityRoutes_DisabledWithoutStores(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Comments = nil
		o.Notes = nil
	})

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/comments?subjectId=s", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/notes", `{}`).Code)
}
