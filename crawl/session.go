// Package crawl implements a declarative navigation and scraping DSL on top
// of a pluggable browser engine. Callers express "open this page, find this
// element, act on it, and recurse into its children" as nested scoped blocks
// instead of threading DOM references through every step.
//
// SCOPE MODEL:
// A Session owns a stack of in-scope nodes whose front element is the
// current scope. Entering a block resolves a node relative to that scope,
// pushes it, runs the caller's action, and pops it again on every exit path,
// so the stack depth is identical before and after any block regardless of
// failures. The one sanctioned deviation is Expose, which appends the
// resolved node at the far end of the stack where it outlives the unwind and
// becomes the scope for subsequent top-level statements.
//
// Resolution is dispatched through a closed table over element kind and
// descriptor variant. Pairs outside the table fail with
// ErrUnsupportedDescriptor before the engine is ever consulted.
//
// Sessions are single-driver: the stack is unsynchronized and every
// operation blocks until the engine answers. Concurrency, retries and
// timeouts belong to the engine or the caller, never to this layer.
package crawl

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Session owns the scope stack, the current navigation target and the engine
// handle. Create one per crawl with NewSession and drive it from a single
// goroutine.
type Session struct {
	id     string
	engine Engine
	logger *zap.Logger

	stack scopeStack

	// currentURL is the navigation target; docURL is the address of the
	// document actually held in doc. They diverge between building a
	// navigation block and invoking it, because navigation is lazy.
	currentURL string
	docURL     string
	doc        *html.Node
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger attaches a structured logger. Sessions log nothing by default.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// NewSession builds a session bound to the given engine. The engine handle
// is constant for the session's lifetime; discarding the session releases
// the stack and nothing else.
func NewSession(engine Engine, opts ...Option) *Session {
	s := &Session{
		id:     uuid.New().String(),
		engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session identifier used in log correlation.
func (s *Session) ID() string { return s.id }

// CurrentURL returns the session's navigation target. After a load or a
// navigating click this is the absolute address of the current document.
func (s *Session) CurrentURL() string { return s.currentURL }

// Depth reports the number of nodes currently in scope.
func (s *Session) Depth() int { return s.stack.depth() }

// Current returns the innermost scope node. It panics when nothing is in
// scope, mirroring the executor's stack discipline.
func (s *Session) Current() *html.Node { return s.stack.front() }

// NavigateTo sets the session's navigation target and returns a block bound
// to the whole page. No request is made until the block is invoked; building
// the call is free.
func (s *Session) NavigateTo(rawURL string) *Block {
	s.currentURL = rawURL
	label := "page " + rawURL
	return &Block{
		session: s,
		label:   label,
		resolve: func(ctx context.Context) (*html.Node, error) {
			s.currentURL = rawURL
			return s.currentDocument(ctx)
		},
	}
}

// In returns a block that resolves the target relative to the current scope
// at invocation time.
func (s *Session) In(t Target) *Block {
	return &Block{
		session: s,
		label:   t.String(),
		resolve: func(ctx context.Context) (*html.Node, error) {
			return s.resolveOne(t, s.scopeHint())
		},
	}
}

// ForAll returns a list block over every node matching the target's path
// descriptor. Only path descriptors support list resolution.
func (s *Session) ForAll(t Target) *ListBlock {
	return &ListBlock{
		session: s,
		label:   t.String(),
		resolve: func(ctx context.Context) ([]*html.Node, error) {
			return s.resolveList(t, s.scopeHint())
		},
	}
}

// OnCurrentPage runs fn against the existing innermost scope without
// resolving or pushing anything, then discards that scope level. It is the
// consuming counterpart of Expose: after the inner scopes have unwound, the
// exposed node is current, a sequence of OnCurrentPage calls can act on it,
// and the final pop retires it.
func (s *Session) OnCurrentPage(ctx context.Context, fn Action) error {
	s.stack.front() // fatal when nothing is in scope
	defer s.exitScope("current page")
	return fn(ctx)
}

// From resolves the target relative to the current scope and returns the
// node directly. The stack is not touched; this is the read-only extraction
// path.
func (s *Session) From(t Target) (*html.Node, error) {
	return s.resolveOne(t, s.scopeHint())
}

// TypeIn sets the value of the current scope node. The node must be an
// input-capable element.
func (s *Session) TypeIn(ctx context.Context, text string) error {
	n := s.stack.front()
	if !isTextInput(n) {
		return fmt.Errorf("type into <%s>: %w", elementName(n), ErrTypeMismatch)
	}
	if err := s.engine.SetValue(ctx, n, text); err != nil {
		return fmt.Errorf("set value on <%s>: %w", elementName(n), err)
	}
	s.logger.Debug("Typed into element", zap.String("element", elementName(n)))
	return nil
}

// Click activates the current scope node. The node must be an interactive
// element. Activation may navigate; the returned block is bound to whatever
// document is current afterwards, so callers chain straight into it.
func (s *Session) Click(ctx context.Context) (*Block, error) {
	n := s.stack.front()
	if !isInteractive(n) {
		return nil, fmt.Errorf("click <%s>: %w", elementName(n), ErrTypeMismatch)
	}
	doc, err := s.engine.Activate(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("activate <%s>: %w", elementName(n), err)
	}
	if doc != nil {
		s.doc = doc
		s.currentURL = s.engine.Location()
		s.docURL = s.currentURL
	}
	s.logger.Debug("Clicked element",
		zap.String("element", elementName(n)), zap.String("url", s.currentURL))
	return &Block{
		session: s,
		label:   "page " + s.currentURL,
		resolve: func(ctx context.Context) (*html.Node, error) {
			return s.currentDocument(ctx)
		},
	}, nil
}

// currentDocument returns the loaded document for the navigation target,
// fetching it through the engine when the target moved since the last load.
func (s *Session) currentDocument(ctx context.Context) (*html.Node, error) {
	if s.doc != nil && s.docURL == s.currentURL {
		return s.doc, nil
	}
	s.logger.Info("Navigating", zap.String("url", s.currentURL))
	doc, err := s.engine.LoadDocument(ctx, s.currentURL)
	if err != nil {
		return nil, fmt.Errorf("load document '%s': %w", s.currentURL, err)
	}
	s.doc = doc
	s.currentURL = s.engine.Location()
	s.docURL = s.currentURL
	return doc, nil
}

// scopeHint returns the innermost scope node, or nil before the first push.
// Resolution treats a nil hint as "whole document".
func (s *Session) scopeHint() *html.Node {
	if s.stack.depth() == 0 {
		return nil
	}
	return s.stack.front()
}

func (s *Session) enterScope(label string, n *html.Node) {
	s.stack.pushFront(n)
	s.logger.Debug("Entered scope",
		zap.String("target", label), zap.Int("depth", s.stack.depth()))
}

func (s *Session) exitScope(label string) {
	s.stack.popFront()
	s.logger.Debug("Left scope",
		zap.String("target", label), zap.Int("depth", s.stack.depth()))
}

// isTextInput reports whether n can receive typed text.
func isTextInput(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "input", "textarea":
		return true
	}
	return false
}

// isInteractive reports whether n is something a user could click.
func isInteractive(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "a", "area", "button", "img", "input":
		return true
	}
	return false
}

func elementName(n *html.Node) string {
	if n == nil {
		return "nil"
	}
	if n.Type == html.DocumentNode {
		return "#document"
	}
	return strings.ToLower(n.Data)
}
