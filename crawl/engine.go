package crawl

import (
	"context"

	"golang.org/x/net/html"
)

// Engine is the capability surface the DSL requires from a browser backend.
// Implementations own the document trees they hand out; the DSL holds only
// transient references into them.
//
// The Find methods are pure tree queries: they return (nil, nil) when nothing
// matches, and a non-nil error only for engine faults such as a malformed
// path expression. The session maps a nil match to ErrNodeNotFound.
type Engine interface {
	// LoadDocument fetches rawURL, which may be relative to the engine's
	// current location, and returns the parsed document root.
	LoadDocument(ctx context.Context, rawURL string) (*html.Node, error)

	// FindByID returns the first element under root whose id attribute
	// equals id.
	FindByID(root *html.Node, id string) (*html.Node, error)

	// FindByName returns the first form control under root whose name
	// attribute equals name.
	FindByName(root *html.Node, name string) (*html.Node, error)

	// FindByPath evaluates the XPath expression expr with root as the
	// context node and returns all matches in document order.
	FindByPath(root *html.Node, expr string) ([]*html.Node, error)

	// FindAnchorByText returns the first anchor under root whose rendered
	// text equals text after trimming surrounding whitespace.
	FindAnchorByText(root *html.Node, text string) (*html.Node, error)

	// SetValue writes value into the form control node.
	SetValue(ctx context.Context, node *html.Node, value string) error

	// Activate simulates a user click on node and returns the document that
	// is current once any resulting navigation has settled. When the click
	// has no navigation consequence the current document is returned.
	Activate(ctx context.Context, node *html.Node) (*html.Node, error)

	// Location reports the absolute URL of the most recently loaded
	// document, or an empty string before the first load.
	Location() string
}
