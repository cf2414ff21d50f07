// Package api serves the wallet scoring and voting HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"kol-scoreboard/internal/broadcast"
	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/orchestrator"
	"kol-scoreboard/internal/ratelimit"
	"kol-scoreboard/internal/storage"
)

// Scraper produces wallet stats for an address.
type Scraper interface {
	FetchWalletStats(ctx context.Context, address string) (orchestrator.Result, error)
}

// Limits are the per-client request budgets.
type Limits struct {
	VoteLimit  int
	VoteWindow time.Duration
	ReadLimit  int
	ReadWindow time.Duration
}

// DefaultLimits matches the public deployment: 10 votes and 30 reads per minute.
func DefaultLimits() Limits {
	return Limits{
		VoteLimit:  10,
		VoteWindow: time.Minute,
		ReadLimit:  30,
		ReadWindow: time.Minute,
	}
}

// Options for creating Server.
type Options struct {
	// Required
	Scraper Scraper
	Votes   storage.VoteStore
	Hub     *broadcast.Hub

	// Optional
	Cache              storage.ScrapeCache    // nil disables result caching
	CacheTTL           time.Duration          // defaults to 5m
	Runs               storage.ScrapeRunStore // nil disables the audit log
	Comments           storage.CommentStore   // nil disables /api/comments
	Notes              storage.NoteStore      // nil disables /api/notes
	Limiter            *ratelimit.Limiter     // defaults to ratelimit.New(ratelimit.DefaultMaxKeys)
	Limits             *Limits                // defaults to DefaultLimits
	TrustProxy         bool                   // take the client IP from X-Forwarded-For
	RequireWalletVoter bool                   // reject voter IDs that are not Solana wallets
	RecentDefault      int                    // defaults to 10
	RecentMax          int                    // defaults to 50
	CORSOrigin         string                 // defaults to "*"
	Heartbeat          time.Duration          // stream keep-alive, defaults to 15s
	WriteTimeout       time.Duration          // websocket frame deadline, defaults to 10s
	Backend            string                 // reported on /status
	Logger             *slog.Logger
	Clock              func() time.Time
}

// Server holds the handlers and their collaborators.
type Server struct {
	scraper  Scraper
	votes    storage.VoteStore
	hub      *broadcast.Hub
	cache    storage.ScrapeCache
	runs     storage.ScrapeRunStore
	comments storage.CommentStore
	notes    storage.NoteStore
	limiter  *ratelimit.Limiter
	limits   Limits
	logger   *slog.Logger
	now      func() time.Time

	cacheTTL           time.Duration
	trustProxy         bool
	requireWalletVoter bool
	recentDefault      int
	recentMax          int
	corsOrigin         string
	heartbeat          time.Duration
	writeTimeout       time.Duration
	backend            string
	started            time.Time
}

// New creates a new Server.
func New(opts Options) *Server {
	s := &Server{
		scraper:            opts.Scraper,
		votes:              opts.Votes,
		hub:                opts.Hub,
		cache:              opts.Cache,
		runs:               opts.Runs,
		comments:           opts.Comments,
		notes:              opts.Notes,
		limiter:            opts.Limiter,
		logger:             opts.Logger,
		now:                opts.Clock,
		cacheTTL:           opts.CacheTTL,
		trustProxy:         opts.TrustProxy,
		requireWalletVoter: opts.RequireWalletVoter,
		recentDefault:      opts.RecentDefault,
		recentMax:          opts.RecentMax,
		corsOrigin:         opts.CORSOrigin,
		heartbeat:          opts.Heartbeat,
		writeTimeout:       opts.WriteTimeout,
		backend:            opts.Backend,
	}
	if opts.Limits != nil {
		s.limits = *opts.Limits
	} else {
		s.limits = DefaultLimits()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.DefaultMaxKeys)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 5 * time.Minute
	}
	if s.recentDefault <= 0 {
		s.recentDefault = 10
	}
	if s.recentMax < s.recentDefault {
		s.recentMax = 50
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 15 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	if s.backend == "" {
		s.backend = "memory"
	}
	s.started = s.now()
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/wallet-stats", s.handleWalletStats)

	mux.HandleFunc("POST /api/votes", s.handleCastVote)
	mux.HandleFunc("GET /api/votes/tally", s.handleTally)
	mux.HandleFunc("GET /api/votes/voter", s.handleVoterVotes)
	mux.HandleFunc("GET /api/votes/all", s.handleAllTallies)
	mux.HandleFunc("GET /api/votes/recent", s.handleRecentVoters)
	mux.HandleFunc("GET /api/votes/stream", s.handleStream)
	mux.HandleFunc("GET /api/votes/ws", s.handleWebSocket)

	if s.comments != nil {
		mux.HandleFunc("GET /api/comments", s.handleComments)
		mux.HandleFunc("POST /api/comments", s.handleAddComment)
	}
	if s.notes != nil {
		mux.HandleFunc("POST /api/notes", s.handleSubmitNote)
	}
	if s.runs != nil {
		mux.HandleFunc("GET /api/scrape-runs", s.handleScrapeRuns)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", observability.Handler())

	return s.withRecovery(s.withLogging(s.withCORS(mux)))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string    `json:"status"`
	Uptime      string    `json:"uptime"`
	StartedAt   time.Time `json:"started_at"`
	Subscribers int       `json:"subscribers"`
	VoteBackend string    `json:"vote_backend"`
	Cache       bool      `json:"cache"`
	AuditLog    bool      `json:"audit_log"`

	// Scrapes counts audit outcomes over the last 24h. Omitted without an audit log.
	Scrapes map[domain.ScrapeOutcome]uint64 `json:"scrapes_24h,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "running",
		Uptime:      s.now().Sub(s.started).Round(time.Second).String(),
		StartedAt:   s.started,
		Subscribers: s.hub.Len(),
		VoteBackend: s.backend,
		Cache:       s.cache != nil,
		AuditLog:    s.runs != nil,
		Scrapes:     s.scrapeOutcomes(r.Context()),
	})
}
