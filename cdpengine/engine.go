// Package cdpengine implements the crawl engine contract on top of a real
// Chrome instance driven over the DevTools protocol. Navigation and
// interaction go through the browser; queries run locally against a mirror of
// the page built from the browser's outer HTML, so the resolution semantics
// are identical to the pure-Go engine. The mirror is rebuilt after every
// navigation; nodes from earlier documents stay valid in memory but describe
// a page the browser has left.
package cdpengine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
	"github.com/JoeyJohnson82/ScCrawler/crawl"
)

const defaultNavigationTimeout = 60 * time.Second

// Config controls the browser launch and the engine's behavior.
type Config struct {
	// Persona supplies the user agent and viewport presented by the browser.
	Persona schemas.Persona

	// Headless launches Chrome without a visible window.
	Headless bool

	// Args are extra command line flags for the browser, without the leading
	// dashes ("disable-gpu", "no-sandbox=true").
	Args []string

	// Humanize paces interactions with jittered delays and types key by key
	// instead of firing events back to back.
	Humanize bool

	// NavigationTimeout caps one navigation including the readiness wait.
	NavigationTimeout time.Duration

	Logger *zap.Logger
}

// Engine drives Chrome through CDP while answering queries from a local DOM
// mirror.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	pacer  *pacer

	browserCtx  context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mirror   *html.Node
	location string
}

var _ crawl.Engine = (*Engine)(nil)

// New launches a browser and returns an engine bound to one tab. Close must
// be called to shut the browser down.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Persona.UserAgent == "" {
		cfg.Persona = schemas.DefaultPersona
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdpengine")

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.Persona.UserAgent),
		chromedp.WindowSize(cfg.Persona.Width, cfg.Persona.Height),
	)
	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(arg, "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelTab := chromedp.NewContext(allocCtx)

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		pacer:       newPacer(cfg.Humanize),
		browserCtx:  browserCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	// Start the browser eagerly so a broken Chrome install fails here
	// instead of on the first navigation, and override the identity the tab
	// reports to page scripts, which the UserAgent launch flag alone does
	// not cover.
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetUserAgentOverride(cfg.Persona.UserAgent).
			WithPlatform(cfg.Persona.Platform).
			WithAcceptLanguage(strings.Join(cfg.Persona.Languages, ",")).
			Do(ctx)
	}))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	logger.Debug("Browser launched", zap.Bool("headless", cfg.Headless))
	return e, nil
}

// NewSession launches a browser and wraps the engine in a crawl session.
func NewSession(ctx context.Context, cfg Config, opts ...crawl.Option) (*crawl.Session, *Engine, error) {
	engine, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Logger != nil {
		opts = append([]crawl.Option{crawl.WithLogger(cfg.Logger)}, opts...)
	}
	return crawl.NewSession(engine, opts...), engine, nil
}

// Close shuts the tab and the browser process down.
func (e *Engine) Close() {
	if e.cancelTab != nil {
		e.cancelTab()
	}
	if e.cancelAlloc != nil {
		e.cancelAlloc()
	}
}

// LoadDocument navigates the tab to rawURL, waits for the document to be
// ready, and mirrors it locally.
func (e *Engine) LoadDocument(ctx context.Context, rawURL string) (*html.Node, error) {
	resolved, err := e.resolveURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve URL '%s': %w", rawURL, err)
	}

	navCtx, cancel := e.actionContext(ctx)
	defer cancel()

	e.logger.Info("Navigating", zap.String("url", resolved))
	err = chromedp.Run(navCtx,
		chromedp.Navigate(resolved),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("navigation to '%s' failed: %w", resolved, err)
	}
	return e.refreshMirror(navCtx)
}

// FindByID returns the first element under root carrying the id.
func (e *Engine) FindByID(root *html.Node, id string) (*html.Node, error) {
	if root == nil {
		return nil, nil
	}
	return htmlquery.Query(root, "//*[@id="+xpathString(id)+"]")
}

// FindByName returns the first form control under root carrying the name.
func (e *Engine) FindByName(root *html.Node, name string) (*html.Node, error) {
	if root == nil {
		return nil, nil
	}
	expr := "//*[@name=" + xpathString(name) + "][self::input or self::textarea or self::select or self::button]"
	return htmlquery.Query(root, expr)
}

// FindByPath evaluates expr against the mirror with root as the context node.
func (e *Engine) FindByPath(root *html.Node, expr string) ([]*html.Node, error) {
	if root == nil {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid path expression '%s': %w", expr, err)
	}
	return nodes, nil
}

// FindAnchorByText returns the first anchor whose trimmed text equals text.
func (e *Engine) FindAnchorByText(root *html.Node, text string) (*html.Node, error) {
	if root == nil {
		return nil, nil
	}
	anchors, err := htmlquery.QueryAll(root, "//a")
	if err != nil {
		return nil, err
	}
	for _, a := range anchors {
		if strings.TrimSpace(htmlquery.InnerText(a)) == text {
			return a, nil
		}
	}
	return nil, nil
}

// SetValue types value into the browser-side element matching the mirrored
// node, then updates the mirror in place so the local tree keeps describing
// what the browser shows.
func (e *Engine) SetValue(ctx context.Context, node *html.Node, value string) error {
	xp, err := absoluteXPath(node)
	if err != nil {
		return err
	}

	actCtx, cancel := e.actionContext(ctx)
	defer cancel()

	actions := []chromedp.Action{chromedp.Clear(xp, chromedp.BySearch)}
	if e.pacer.enabled() {
		for _, r := range value {
			actions = append(actions,
				chromedp.Sleep(e.pacer.keyDelay()),
				chromedp.SendKeys(xp, string(r), chromedp.BySearch),
			)
		}
	} else {
		actions = append(actions, chromedp.SendKeys(xp, value, chromedp.BySearch))
	}

	if err := e.pacer.pause(actCtx); err != nil {
		return err
	}
	if err := chromedp.Run(actCtx, actions...); err != nil {
		return fmt.Errorf("failed to type into '%s': %w", xp, err)
	}

	mirrorSetValue(node, value)
	e.logger.Debug("Typed into element", zap.String("xpath", xp))
	return nil
}

// Activate clicks the browser-side element matching the mirrored node, waits
// for the page to settle, and returns the refreshed mirror. Non-navigating
// clicks return a mirror of the same page with any state changes applied.
func (e *Engine) Activate(ctx context.Context, node *html.Node) (*html.Node, error) {
	xp, err := absoluteXPath(node)
	if err != nil {
		return nil, err
	}

	actCtx, cancel := e.actionContext(ctx)
	defer cancel()

	if err := e.pacer.pause(actCtx); err != nil {
		return nil, err
	}
	err = chromedp.Run(actCtx,
		chromedp.Click(xp, chromedp.BySearch),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to click '%s': %w", xp, err)
	}

	e.logger.Debug("Clicked element", zap.String("xpath", xp))
	return e.refreshMirror(actCtx)
}

// Location reports the browser's current address.
func (e *Engine) Location() string { return e.location }

// refreshMirror reads the tab's location and outer HTML and rebuilds the
// local DOM mirror from them.
func (e *Engine) refreshMirror(ctx context.Context) (*html.Node, error) {
	var loc, raw string
	err := chromedp.Run(ctx,
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &raw, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read page state: %w", err)
	}

	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML from '%s': %w", loc, err)
	}

	e.mirror = doc
	e.location = loc
	return doc, nil
}

// actionContext derives the deadline-bound chromedp context for one engine
// operation. The caller's ctx carries cancellation; the browser context
// carries the CDP session, so the two are bridged by watching ctx.
func (e *Engine) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	actCtx, cancel := context.WithTimeout(e.browserCtx, e.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return actCtx, func() {
		stop()
		cancel()
	}
}

func (e *Engine) resolveURL(target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	if e.location == "" {
		return "", fmt.Errorf("must be an absolute URL for initial navigation: %s", target)
	}
	base, err := url.Parse(e.location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}

// mirrorSetValue applies the typed value to the mirrored node, matching what
// the browser now shows.
func mirrorSetValue(node *html.Node, value string) {
	if node == nil {
		return
	}
	switch strings.ToLower(node.Data) {
	case "textarea":
		for c := node.FirstChild; c != nil; c = node.FirstChild {
			node.RemoveChild(c)
		}
		node.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	default:
		for i := range node.Attr {
			if strings.EqualFold(node.Attr[i].Key, "value") {
				node.Attr[i].Val = value
				return
			}
		}
		node.Attr = append(node.Attr, html.Attribute{Key: "value", Val: value})
	}
}

// xpathString quotes s as an XPath string literal. XPath 1.0 cannot escape
// quotes inside literals, so values mixing both kinds go through concat().
func xpathString(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `,"'",`) + ")"
}
