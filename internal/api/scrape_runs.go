package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kol-scoreboard/internal/domain"
)

// statusWindow is how far back /status counts scrape outcomes.
const statusWindow = 24 * time.Hour

type scrapeRunResponse struct {
	StartedAt  string `json:"startedAt"`
	DurationMs int64  `json:"durationMs"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	Rank       string `json:"rank"`
}

func (s *Server) handleScrapeRuns(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, "read", s.limits.ReadLimit, s.limits.ReadWindow) {
		return
	}
	q := r.URL.Query()
	address := strings.TrimSpace(q.Get("address"))
	if address == "" {
		writeValidation(w, missing("address"))
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

	runs, err := s.runs.GetByAddress(r.Context(), address, limit)
	if err != nil {
		s.logger.Error("scrape runs failed", "address", address, "error", err)
		writeInternal(w, "Error fetching scrape runs")
		return
	}
	out := make([]scrapeRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, scrapeRunResponse{
			StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
			DurationMs: run.DurationMs,
			Outcome:    string(run.Outcome),
			Reason:     run.Reason,
			Rank:       string(run.Rank),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"address": address,
		"runs":    out,
	})
}

// scrapeOutcomes counts audit outcomes over statusWindow. Nil when the audit log is disabled or unreachable.
func (s *Server) scrapeOutcomes(ctx context.Context) map[domain.ScrapeOutcome]uint64 {
	if s.runs == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()
	counts, err := s.runs.OutcomeCounts(ctx, s.now().Add(-statusWindow))
	if err != nil {
		s.logger.Warn("scrape outcome counts failed", "error", err)
		return nil
	}
	return counts
}
