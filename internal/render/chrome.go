package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeConfig configures the headless browser renderer.
type ChromeConfig struct {
	// URLTemplate is the profile page URL with {address} and {window} placeholders.
	URLTemplate string
	// ExecPath overrides the browser binary. Empty uses chromedp's lookup.
	ExecPath string
	// NoSandbox disables the browser sandbox (needed in some containers).
	NoSandbox bool
	// ViewportWidth and ViewportHeight fix the window size.
	ViewportWidth  int
	ViewportHeight int
	// NavigationTimeout is the ceiling for reaching network idle.
	NavigationTimeout time.Duration
	// SettleDelay is waited after network idle for client-side rendering.
	SettleDelay time.Duration
	// UserAgents overrides the built-in rotation pool.
	UserAgents []string
}

// DefaultChromeConfig returns default browser configuration.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		URLTemplate:       DefaultURLTemplate,
		ViewportWidth:     1280,
		ViewportHeight:    800,
		NavigationTimeout: 60 * time.Second,
		SettleDelay:       2 * time.Second,
	}
}

// ChromeRenderer drives a fresh headless Chrome process for every call.
// Concurrent calls never share browser state.
type ChromeRenderer struct {
	cfg    ChromeConfig
	agents *UserAgentPool
	logger *slog.Logger
}

// NewChromeRenderer creates a renderer. Zero config fields take defaults.
func NewChromeRenderer(cfg ChromeConfig, logger *slog.Logger) *ChromeRenderer {
	def := DefaultChromeConfig()
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = def.URLTemplate
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{
		cfg:    cfg,
		agents: NewUserAgentPool(cfg.UserAgents),
		logger: logger,
	}
}

// Render launches a browser, loads the profile page and returns document.body.innerText.
// The browser process is killed on every return path.
func (r *ChromeRenderer) Render(ctx context.Context, address string) (string, error) {
	target := ProfileURL(r.cfg.URLTemplate, address)
	ua := r.agents.Next()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(ua),
		chromedp.WindowSize(r.cfg.ViewportWidth, r.cfg.ViewportHeight),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	// Cancelling the allocator kills the process and removes its temp profile.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	start := time.Now()
	if err := chromedp.Run(browserCtx); err != nil {
		return "", &RenderError{Reason: ReasonLaunchFailed, Address: address, Err: err}
	}
	r.logger.Debug("browser launched", "address", address, "elapsed", time.Since(start))

	// A page target's main frame shares the target's ID.
	mainFrame := cdp.FrameID(chromedp.FromContext(browserCtx).Target.TargetID)
	idle := watchNetworkIdle(browserCtx, mainFrame)

	navCtx, cancelNav := context.WithTimeout(browserCtx, r.cfg.NavigationTimeout)
	defer cancelNav()

	err := chromedp.Run(navCtx,
		chromedp.EmulateViewport(int64(r.cfg.ViewportWidth), int64(r.cfg.ViewportHeight)),
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(target),
	)
	if err != nil {
		return "", r.classify(navCtx, address, err)
	}

	select {
	case <-idle:
	case <-navCtx.Done():
		return "", r.classify(navCtx, address, navCtx.Err())
	}

	var text string
	err = chromedp.Run(browserCtx,
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)
	if err != nil {
		return "", r.classify(browserCtx, address, err)
	}

	r.logger.Debug("page rendered", "address", address, "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}

func (r *ChromeRenderer) classify(ctx context.Context, address string, err error) *RenderError {
	reason := ReasonCrashed
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ReasonNavigationTimeout
		err = fmt.Errorf("no network idle within %s: %w", r.cfg.NavigationTimeout, err)
	}
	return &RenderError{Reason: reason, Address: address, Err: err}
}

// idleTracker matches lifecycle events of one frame's current navigation.
type idleTracker struct {
	frame  cdp.FrameID
	loader cdp.LoaderID
}

// observe reports whether e is networkIdle for the tracked frame's latest loader.
// Events from other frames and from before the frame's init are ignored.
func (t *idleTracker) observe(e *page.EventLifecycleEvent) bool {
	if e.FrameID != t.frame {
		return false
	}
	switch e.Name {
	case "init":
		t.loader = e.LoaderID
	case "networkIdle":
		return t.loader != "" && e.LoaderID == t.loader
	}
	return false
}

// watchNetworkIdle signals once mainFrame's navigation reports networkIdle.
func watchNetworkIdle(ctx context.Context, mainFrame cdp.FrameID) <-chan struct{} {
	idle := make(chan struct{}, 1)
	var mu sync.Mutex
	tracker := &idleTracker{frame: mainFrame}
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		mu.Lock()
		fire := tracker.observe(e)
		mu.Unlock()
		if fire {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})
	return idle
}

var _ Renderer = (*ChromeRenderer)(nil)
