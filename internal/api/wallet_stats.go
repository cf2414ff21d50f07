package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/orchestrator"
)

const auditTimeout = 3 * time.Second

func (s *Server) handleWalletStats(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Address is required"})
		return
	}
	ctx := r.Context()
	start := s.now()

	if resp, ok := s.cachedStats(ctx, address); ok {
		s.recordRun(ctx, &domain.ScrapeRun{
			Address:   address,
			StartedAt: start,
			Outcome:   domain.ScrapeCached,
			Rank:      domain.RankLabel(resp.Rank),
		})
		writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := s.scraper.FetchWalletStats(ctx, address)
	run := &domain.ScrapeRun{
		Address:    address,
		StartedAt:  start,
		DurationMs: res.Duration.Milliseconds(),
		Outcome:    domain.ScrapeOK,
		Rank:       res.Score.Label,
	}
	if err != nil {
		var failure *orchestrator.ScrapeFailure
		if !errors.As(err, &failure) {
			s.logger.Error("wallet stats failed", "address", address, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch wallet stats"})
			return
		}
		run.Outcome = domain.ScrapeUnavailable
		run.Reason = string(failure.Reason)
		run.Rank = domain.RankUnranked
		res.Unavailable = true
	}
	s.recordRun(ctx, run)

	resp := newWalletStatsResponse(res)
	if !resp.Unavailable {
		s.storeStats(ctx, address, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cachedStats(ctx context.Context, address string) (WalletStatsResponse, bool) {
	var resp WalletStatsResponse
	if s.cache == nil {
		return resp, false
	}
	data, ok, err := s.cache.Get(ctx, address)
	if err != nil {
		s.logger.Warn("scrape cache get failed", "address", address, "error", err)
		return resp, false
	}
	observability.RecordCacheLookup(ok)
	if !ok {
		return resp, false
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn("scrape cache entry corrupt", "address", address, "error", err)
		return resp, false
	}
	resp.Cached = true
	return resp, true
}

func (s *Server) storeStats(ctx context.Context, address string, resp WalletStatsResponse) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, address, data, s.cacheTTL); err != nil {
		s.logger.Warn("scrape cache set failed", "address", address, "error", err)
	}
}

// recordRun writes the audit record. Failures are logged and never reach the client.
func (s *Server) recordRun(ctx context.Context, run *domain.ScrapeRun) {
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.runs.Insert(ctx, run); err != nil {
		s.logger.Warn("scrape audit insert failed", "address", run.Address, "outcome", run.Outcome, "error", err)
	}
}
