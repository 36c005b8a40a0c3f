// Package htmldom implements the default crawl engine in pure Go. Pages are
// fetched over a browser-shaped HTTP stack (cookie jar, manual redirect
// walking, persona headers, transparent decompression), parsed into
// x/net/html trees, and queried locally with XPath. Click consequences are
// simulated the way a browser would resolve them: checkbox and radio state
// flips, anchor navigation, and form submission with standard control
// serialization. Inline page scripts run on a Goja VM with a console wired
// into the logger.
//
// The engine is single-driver, matching the crawl session contract; nothing
// here is safe for concurrent use.
package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
	"github.com/JoeyJohnson82/ScCrawler/crawl"
	"github.com/JoeyJohnson82/ScCrawler/htmldom/network"
)

const (
	maxRedirects             = 10
	defaultNavigationTimeout = 60 * time.Second
)

// Config controls the engine's identity and behavior.
type Config struct {
	// Persona is the browser-version identity presented to servers and
	// exposed to page scripts.
	Persona schemas.Persona

	// ExecuteScripts runs inline page scripts after each load.
	ExecuteScripts bool

	// FailOnScriptError decides whether a failing page script aborts the
	// load or is logged and swallowed.
	FailOnScriptError bool

	// NavigationTimeout caps one load including every redirect hop.
	NavigationTimeout time.Duration

	// CaptureTraffic records each exchange into a HAR archive;
	// CaptureBodies additionally stores response bodies.
	CaptureTraffic bool
	CaptureBodies  bool

	InsecureSkipVerify bool
	EnableHTTP3        bool
	ProxyURL           string

	Logger *zap.Logger
}

// Engine is the pure-Go crawl backend.
type Engine struct {
	cfg       Config
	logger    *zap.Logger
	client    *http.Client
	harvester *network.Harvester
	scripts   *scriptRunner

	currentURL *url.URL
	doc        *html.Node
}

var _ crawl.Engine = (*Engine)(nil)

// New builds an engine from the config, filling unset fields with defaults.
func New(cfg Config) (*Engine, error) {
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
	logger = logger.Named("htmldom")

	netCfg := network.NewBrowserClientConfig()
	netCfg.InsecureSkipVerify = cfg.InsecureSkipVerify
	netCfg.EnableHTTP3 = cfg.EnableHTTP3
	netCfg.Logger = logger
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL '%s': %w", cfg.ProxyURL, err)
		}
		netCfg.ProxyURL = proxy
	}
	client := network.NewClient(netCfg)

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		scripts: newScriptRunner(logger, cfg.Persona, cfg.FailOnScriptError),
	}
	if cfg.CaptureTraffic {
		e.harvester = network.NewHarvester(client.Transport, logger, cfg.CaptureBodies)
		client.Transport = e.harvester
	}
	return e, nil
}

// LoadDocument fetches rawURL, resolved against the current location, and
// returns the parsed document. The engine's location and document state
// advance only on success.
func (e *Engine) LoadDocument(ctx context.Context, rawURL string) (*html.Node, error) {
	resolved, err := e.resolveURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve URL '%s': %w", rawURL, err)
	}
	if resolved == nil {
		return nil, fmt.Errorf("no URL to load")
	}

	navCtx, cancel := context.WithTimeout(ctx, e.cfg.NavigationTimeout)
	defer cancel()

	e.logger.Info("Navigating", zap.String("url", resolved.String()))
	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for '%s': %w", resolved.String(), err)
	}
	e.prepareRequestHeaders(req)

	return e.executeRequest(navCtx, req)
}

// executeRequest walks the request and any redirect chain by hand.
func (e *Engine) executeRequest(ctx context.Context, req *http.Request) (*html.Node, error) {
	current := req
	for i := 0; i < maxRedirects; i++ {
		e.logger.Debug("Executing request",
			zap.String("method", current.Method), zap.String("url", current.URL.String()))
		resp, err := e.client.Do(current)
		if err != nil {
			return nil, fmt.Errorf("request for '%s' failed: %w", current.URL.String(), err)
		}
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			next, err := e.redirectRequest(ctx, resp, current)
			_ = resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to handle redirect: %w", err)
			}
			current = next
			continue
		}
		return e.processResponse(ctx, resp)
	}
	return nil, fmt.Errorf("maximum number of redirects (%d) exceeded", maxRedirects)
}

// redirectRequest builds the follow-up request for a 3xx response. 301, 302
// and 303 rewrite to GET and drop the body; 307 and 308 replay it.
func (e *Engine) redirectRequest(ctx context.Context, resp *http.Response, original *http.Request) (*http.Request, error) {
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("redirect response missing Location header")
	}
	nextURL, err := original.URL.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect Location '%s': %w", location, err)
	}

	method := original.Method
	var body io.ReadCloser
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodHead {
			method = http.MethodGet
		}
	default:
		if original.GetBody != nil {
			body, err = original.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to replay body for redirect: %w", err)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, nextURL.String(), body)
	if err != nil {
		return nil, err
	}
	e.prepareRequestHeaders(req)
	req.Header.Set("Referer", original.URL.String())
	return req, nil
}

// processResponse parses the final response of a navigation and promotes it
// to the engine's current document.
func (e *Engine) processResponse(ctx context.Context, resp *http.Response) (*html.Node, error) {
	defer resp.Body.Close()

	finalURL := resp.Request.URL
	if resp.StatusCode >= 400 {
		e.logger.Warn("Request resulted in error status code",
			zap.Int("status", resp.StatusCode), zap.String("url", finalURL.String()))
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		e.logger.Debug("Response is not HTML", zap.String("content_type", contentType))
		_, _ = io.Copy(io.Discard, resp.Body)
		e.currentURL = finalURL
		e.doc = emptyDocument()
		return e.doc, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from '%s': %w", finalURL.String(), err)
	}

	e.currentURL = finalURL
	e.doc = doc

	if e.cfg.ExecuteScripts {
		if err := e.scripts.runInline(ctx, doc, finalURL); err != nil {
			return nil, fmt.Errorf("page script failed on '%s': %w", finalURL.String(), err)
		}
	}
	return doc, nil
}

// resolveURL resolves target against the current location. Relative targets
// before the first navigation are an error, except the empty string, which
// resolves to nothing.
func (e *Engine) resolveURL(target string) (*url.URL, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if e.currentURL != nil {
		return e.currentURL.ResolveReference(parsed), nil
	}
	if !parsed.IsAbs() {
		if target == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("must be an absolute URL for initial navigation: %s", target)
	}
	return parsed, nil
}

func (e *Engine) prepareRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", e.cfg.Persona.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", strings.Join(e.cfg.Persona.Languages, ","))
	if req.Header.Get("Referer") == "" && e.currentURL != nil {
		req.Header.Set("Referer", e.currentURL.String())
	}
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

// FindByPath evaluates expr with root as the context node.
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

// SetValue writes value into a form control: the value attribute for inputs,
// the text content for textareas, the selected option for selects.
func (e *Engine) SetValue(_ context.Context, node *html.Node, value string) error {
	if node == nil {
		return fmt.Errorf("cannot set value on nil node")
	}
	switch strings.ToLower(node.Data) {
	case "input":
		setAttr(node, "value", value)
	case "textarea":
		replaceText(node, value)
	case "select":
		return selectOption(node, value)
	default:
		return fmt.Errorf("cannot set value on <%s> element", node.Data)
	}
	return nil
}

// Activate simulates a click on element and resolves its consequence:
// checkbox and radio state changes stay on the current page, anchors and
// areas navigate, submit controls submit their enclosing form. Anything else
// is a no-op returning the current document.
func (e *Engine) Activate(ctx context.Context, element *html.Node) (*html.Node, error) {
	if element == nil {
		return nil, fmt.Errorf("cannot activate nil node")
	}
	tag := strings.ToLower(element.Data)

	if tag == "input" {
		switch strings.ToLower(htmlquery.SelectAttr(element, "type")) {
		case "checkbox":
			if _, checked := getAttr(element, "checked"); checked {
				removeAttr(element, "checked")
			} else {
				setAttr(element, "checked", "checked")
			}
			return e.doc, nil
		case "radio":
			if name := htmlquery.SelectAttr(element, "name"); name != "" {
				root := element
				for root.Parent != nil {
					root = root.Parent
				}
				expr := "//input[@type='radio'][@name=" + xpathString(name) + "]"
				if radios, err := htmlquery.QueryAll(root, expr); err == nil {
					for _, radio := range radios {
						removeAttr(radio, "checked")
					}
				}
			}
			setAttr(element, "checked", "checked")
			return e.doc, nil
		}
	}

	// A click anywhere inside an anchor follows its href.
	for a := element; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && strings.ToLower(a.Data) == "a" {
			if href := htmlquery.SelectAttr(a, "href"); href != "" {
				return e.LoadDocument(ctx, href)
			}
			break
		}
	}

	if tag == "area" {
		if href := htmlquery.SelectAttr(element, "href"); href != "" {
			return e.LoadDocument(ctx, href)
		}
	}

	if form := enclosingForm(element); form != nil && isSubmitControl(element) {
		return e.submitForm(ctx, form)
	}

	return e.doc, nil
}

// Location reports the absolute URL of the current document.
func (e *Engine) Location() string {
	if e.currentURL == nil {
		return ""
	}
	return e.currentURL.String()
}

// HAR returns the captured traffic archive, or nil when capture is off.
func (e *Engine) HAR() *schemas.HAR {
	if e.harvester == nil {
		return nil
	}
	return e.harvester.GenerateHAR()
}

// WaitNetworkIdle blocks until in-flight traffic settles. Without capture
// enabled there is nothing to observe and it returns immediately.
func (e *Engine) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if e.harvester == nil {
		return nil
	}
	return e.harvester.WaitNetworkIdle(ctx, quietPeriod)
}

// Evaluate runs a standalone script on a fresh VM and exports its result.
// The VM carries the persona's navigator but no document state.
func (e *Engine) Evaluate(ctx context.Context, src string) (interface{}, error) {
	return e.scripts.evaluate(ctx, src)
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

func emptyDocument() *html.Node {
	doc, _ := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	return doc
}
