package crawl

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// scopeMode states which root a lookup runs against. Scope handling is
// deliberately uneven across kinds: a nested form or anchor id lookup scans
// the whole document, while field lookups honor the enclosing scope. Callers
// relying on nesting as a hard containment boundary will be surprised; the
// per-kind behavior is part of the contract.
type scopeMode uint8

const (
	// scopeLocal queries within the current scope node.
	scopeLocal scopeMode = iota
	// scopeDocument queries the whole current document.
	scopeDocument
)

type lookupFunc func(eng Engine, root *html.Node, value string) (*html.Node, error)

type rule struct {
	mode scopeMode
	find lookupFunc
}

// resolutionRules is the closed (kind, variant) dispatch table. A pair absent
// from the table is unsupported and fails before any engine call. Page has no
// entry: documents are resolved through navigation, not descriptors.
var resolutionRules = map[ElementKind]map[Variant]rule{
	KindForm: {
		VariantID: {scopeDocument, findByID},
	},
	KindTextField: {
		VariantName: {scopeLocal, findByName},
		VariantID:   {scopeLocal, findByID},
	},
	KindSubmit: {
		VariantName: {scopeLocal, findByName},
		VariantID:   {scopeLocal, findByID},
	},
	KindLink: {
		VariantPath:  {scopeLocal, findFirstByPath},
		VariantText:  {scopeDocument, findAnchorByText},
		VariantID:    {scopeDocument, findByID},
		VariantTitle: {scopeLocal, findAnchorByTitle},
	},
	KindImage: {
		VariantPath: {scopeLocal, findFirstByPath},
	},
	KindContainer: {
		VariantPath: {scopeLocal, findFirstByPath},
		VariantID:   {scopeDocument, findByID},
	},
	KindArea: {
		VariantPath: {scopeLocal, findFirstByPath},
	},
}

func findByID(eng Engine, root *html.Node, id string) (*html.Node, error) {
	return eng.FindByID(root, id)
}

func findByName(eng Engine, root *html.Node, name string) (*html.Node, error) {
	return eng.FindByName(root, name)
}

func findFirstByPath(eng Engine, root *html.Node, expr string) (*html.Node, error) {
	nodes, err := eng.FindByPath(root, expr)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func findAnchorByText(eng Engine, root *html.Node, text string) (*html.Node, error) {
	return eng.FindAnchorByText(root, text)
}

// findAnchorByTitle synthesizes a path lookup over the title attribute.
func findAnchorByTitle(eng Engine, root *html.Node, title string) (*html.Node, error) {
	return findFirstByPath(eng, root, fmt.Sprintf("//a[@title=%s]", xpathLiteral(title)))
}

// xpathLiteral quotes s for embedding in an XPath expression. XPath 1.0 has
// no escape sequence inside string literals, so values containing both quote
// characters fall back to a concat() expression.
func xpathLiteral(s string) string {
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

// resolveOne maps a target to a concrete node. The scope node is a hint whose
// weight depends on the rule's scope mode; a nil scope falls back to the
// current document either way.
func (s *Session) resolveOne(t Target, scope *html.Node) (*html.Node, error) {
	variants, ok := resolutionRules[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", t, ErrUnsupportedDescriptor)
	}
	r, ok := variants[t.Desc.variant]
	if !ok {
		return nil, fmt.Errorf("%s: %w", t, ErrUnsupportedDescriptor)
	}

	root := scope
	if r.mode == scopeDocument || root == nil {
		root = s.doc
	}
	if root == nil {
		return nil, fmt.Errorf("%s: no document loaded: %w", t, ErrNodeNotFound)
	}

	n, err := r.find(s.engine, root, t.Desc.value)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", t, err)
	}
	if n == nil {
		return nil, fmt.Errorf("%s: %w", t, ErrNodeNotFound)
	}
	return n, nil
}

// resolveList maps a target to every matching node in document order. Only
// path descriptors support list resolution; the result is computed eagerly
// and is not a live view.
func (s *Session) resolveList(t Target, scope *html.Node) ([]*html.Node, error) {
	if t.Desc.variant != VariantPath {
		return nil, fmt.Errorf("forAll %s: %w", t, ErrUnsupportedDescriptor)
	}

	root := scope
	if root == nil {
		root = s.doc
	}
	if root == nil {
		return nil, fmt.Errorf("%s: no document loaded: %w", t, ErrNodeNotFound)
	}

	nodes, err := s.engine.FindByPath(root, t.Desc.value)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", t, err)
	}
	return nodes, nil
}
