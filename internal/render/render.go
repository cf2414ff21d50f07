// Package render fetches a wallet profile page and returns its visible text.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"kol-scoreboard/internal/config"
	"kol-scoreboard/internal/domain"
)

// DefaultURLTemplate is the 30-day PnL tokens view of a wallet profile.
const DefaultURLTemplate = "https://app.cielo.finance/profile/{address}/pnl/tokens?timeframe={window}"

// Renderer produces the visible text of a wallet's profile page.
type Renderer interface {
	Render(ctx context.Context, address string) (string, error)
}

// NewFromConfig builds the renderer selected by cfg.Renderer. Anything other
// than the HTTP renderer gets headless Chrome.
func NewFromConfig(cfg config.ScrapeConfig, logger *slog.Logger) Renderer {
	if cfg.Renderer == config.RendererHTTP {
		return NewHTTPRenderer(HTTPConfig{
			URLTemplate: cfg.URLTemplate,
			Timeout:     cfg.NavigationTimeout,
		}, logger)
	}
	chrome := DefaultChromeConfig()
	chrome.URLTemplate = cfg.URLTemplate
	chrome.ExecPath = cfg.ChromePath
	chrome.NoSandbox = cfg.NoSandbox
	chrome.NavigationTimeout = cfg.NavigationTimeout
	chrome.SettleDelay = cfg.SettleDelay
	return NewChromeRenderer(chrome, logger)
}

// Reason classifies a render failure.
type Reason string

const (
	ReasonLaunchFailed      Reason = "launch_failed"
	ReasonNavigationTimeout Reason = "navigation_timeout"
	ReasonCrashed           Reason = "crashed"
	ReasonHTTPStatus        Reason = "http_status"
)

// ErrRender is matched by every *RenderError via errors.Is.
var ErrRender = errors.New("render failed")

// RenderError is returned by renderers for every failure.
type RenderError struct {
	Reason  Reason
	Address string
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s: %v", e.Address, e.Reason, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Is reports ErrRender as a match.
func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}

// ProfileURL expands a URL template for an address. The window is always 30d.
func ProfileURL(template, address string) string {
	if template == "" {
		template = DefaultURLTemplate
	}
	return strings.NewReplacer(
		"{address}", url.PathEscape(address),
		"{window}", domain.MetricsWindow,
	).Replace(template)
}

// defaultUserAgents is a small pool of current desktop browsers.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// UserAgentPool hands out user agents round-robin. Safe for concurrent use.
type UserAgentPool struct {
	agents []string
	next   atomic.Uint64
}

// NewUserAgentPool creates a pool. An empty list uses the built-in agents.
func NewUserAgentPool(agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	cp := make([]string, len(agents))
	copy(cp, agents)
	return &UserAgentPool{agents: cp}
}

// Next returns the next user agent in rotation.
func (p *UserAgentPool) Next() string {
	n := p.next.Add(1) - 1
	return p.agents[n%uint64(len(p.agents))]
}

// Len returns the number of agents in the pool.
func (p *UserAgentPool) Len() int {
	return len(p.agents)
}
