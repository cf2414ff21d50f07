package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReasonFetchFailed is a transport failure of the HTTP renderer.
const ReasonFetchFailed Reason = "fetch_failed"

// HTTPConfig configures the static HTTP renderer.
type HTTPConfig struct {
	URLTemplate string
	Timeout     time.Duration
	UserAgents  []string
}

// HTTPRenderer fetches server-rendered HTML and extracts its visible text.
// It runs no scripts, so it only suits pages that render on the server.
type HTTPRenderer struct {
	client   *resty.Client
	template string
	agents   *UserAgentPool
	logger   *slog.Logger
}

// NewHTTPRenderer creates an HTTP renderer.
func NewHTTPRenderer(cfg HTTPConfig, logger *slog.Logger) *HTTPRenderer {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "text/html,application/xhtml+xml")
	return &HTTPRenderer{
		client:   client,
		template: cfg.URLTemplate,
		agents:   NewUserAgentPool(cfg.UserAgents),
		logger:   logger,
	}
}

// Render GETs the profile page and returns its visible text.
func (r *HTTPRenderer) Render(ctx context.Context, address string) (string, error) {
	target := ProfileURL(r.template, address)

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.agents.Next()).
		Get(target)
	if err != nil {
		reason := ReasonFetchFailed
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			reason = ReasonNavigationTimeout
		}
		return "", &RenderError{Reason: reason, Address: address, Err: err}
	}
	if resp.IsError() {
		return "", &RenderError{
			Reason:  ReasonHTTPStatus,
			Address: address,
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode()),
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", &RenderError{Reason: ReasonFetchFailed, Address: address, Err: fmt.Errorf("parse html: %w", err)}
	}

	text := VisibleText(doc.Find("body"))
	r.logger.Debug("page fetched", "address", address, "status", resp.StatusCode(), "chars", len(text))
	return text, nil
}

// blockElements start a new line in the extracted text, like innerText.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true,
	atom.Pre: true, atom.Section: true, atom.Table: true, atom.Tbody: true,
	atom.Td: true, atom.Th: true, atom.Thead: true, atom.Tr: true, atom.Ul: true,
}

var whitespace = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

var hiddenElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Head: true, atom.Svg: true,
}

// VisibleText approximates innerText for the selection: script and style content is
// skipped, block elements break lines, blank lines are dropped.
func VisibleText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(whitespace.Replace(n.Data))
		return
	case html.ElementNode:
		if hiddenElements[n.DataAtom] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

var _ Renderer = (*HTTPRenderer)(nil)
