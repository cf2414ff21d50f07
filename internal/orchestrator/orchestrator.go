// Package orchestrator runs the wallet scrape pipeline.
// It coordinates: render → extract → score
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/extract"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/render"
	"kol-scoreboard/internal/score"
)

// DefaultBudget bounds a whole scrape. The render ceiling dominates it.
const DefaultBudget = 75 * time.Second

// State is a step of a single scrape.
type State string

const (
	StateIdle       State = "idle"
	StateRendering  State = "rendering"
	StateExtracting State = "extracting"
	StateScoring    State = "scoring"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// ScrapeFailure is returned when the page could not be rendered.
// The accompanying Result is still populated with unavailable defaults.
type ScrapeFailure struct {
	Address string
	Reason  render.Reason
	Err     error
}

func (f *ScrapeFailure) Error() string {
	return fmt.Sprintf("scrape %s failed (%s): %v", f.Address, f.Reason, f.Err)
}

func (f *ScrapeFailure) Unwrap() error {
	return f.Err
}

// Result is the outcome of one scrape.
type Result struct {
	Metrics     domain.WalletMetrics
	Score       domain.RankScore
	Unavailable bool // metrics and score are placeholders
	State       State
	Duration    time.Duration
}

// Orchestrator sequences rendering, extraction and scoring for one address.
// Holds no per-scrape state; concurrent calls are independent.
type Orchestrator struct {
	renderer  render.Renderer
	extractor extract.Extractor
	budget    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	onTransition func(address string, from, to State)
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Renderer render.Renderer

	// Optional
	Extractor    extract.Extractor // defaults to extract.PatternExtractor
	Budget       time.Duration     // defaults to DefaultBudget
	Logger       *slog.Logger
	Clock        func() time.Time
	OnTransition func(address string, from, to State) // observes state changes
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		renderer:     opts.Renderer,
		extractor:    opts.Extractor,
		budget:       opts.Budget,
		logger:       opts.Logger,
		now:          opts.Clock,
		onTransition: opts.OnTransition,
	}
	if o.extractor == nil {
		o.extractor = extract.NewPatternExtractor()
	}
	if o.budget <= 0 {
		o.budget = DefaultBudget
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// FetchWalletStats performs a live scrape of address.
//
// On render failure it returns a *ScrapeFailure together with a Result holding
// inactive default metrics and an Unranked score, so callers can always present Result.
// A caller cancelling ctx does not abort an in-flight scrape; only the budget does.
func (o *Orchestrator) FetchWalletStats(ctx context.Context, address string) (Result, error) {
	start := o.now()
	state := StateIdle

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.budget)
	defer cancel()

	state = o.transition(address, state, StateRendering)
	text, err := o.renderer.Render(runCtx, address)
	if err != nil {
		state = o.transition(address, state, StateFailed)
		failure := toFailure(address, err)
		elapsed := time.Since(start)

		o.logger.Warn("render failed",
			"address", address,
			"reason", failure.Reason,
			"elapsed", elapsed,
			"error", failure.Err,
		)
		observability.RecordScrape(string(domain.ScrapeUnavailable), string(failure.Reason), elapsed.Seconds())

		return Result{
			Metrics:     domain.EmptyMetrics(address, start),
			Score:       domain.UnrankedScore(),
			Unavailable: true,
			State:       state,
			Duration:    elapsed,
		}, failure
	}

	state = o.transition(address, state, StateExtracting)
	metrics := o.extractor.Extract(address, text, start)

	state = o.transition(address, state, StateScoring)
	rank := score.Score(metrics)

	state = o.transition(address, state, StateDone)
	elapsed := time.Since(start)

	o.logger.Info("wallet scraped",
		"address", address,
		"rank", rank.Label,
		"total", rank.Total,
		"inactive", metrics.IsInactive,
		"elapsed", elapsed,
	)
	observability.RecordScrape(string(domain.ScrapeOK), "", elapsed.Seconds())

	return Result{
		Metrics:  metrics,
		Score:    rank,
		State:    state,
		Duration: elapsed,
	}, nil
}

func (o *Orchestrator) transition(address string, from, to State) State {
	if o.onTransition != nil {
		o.onTransition(address, from, to)
	}
	o.logger.Debug("scrape state", "address", address, "from", from, "to", to)
	return to
}

// toFailure wraps any renderer error. Unknown errors count as crashes.
func toFailure(address string, err error) *ScrapeFailure {
	var re *render.RenderError
	if errors.As(err, &re) {
		return &ScrapeFailure{Address: address, Reason: re.Reason, Err: err}
	}
	reason := render.ReasonCrashed
	if errors.Is(err, context.DeadlineExceeded) {
		reason = render.ReasonNavigationTimeout
	}
	return &ScrapeFailure{Address: address, Reason: reason, Err: err}
}
