package crawl_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/JoeyJohnson82/ScCrawler/crawl"
)

// fakeEngine serves pre-parsed fixture documents and answers queries with
// htmlquery, standing in for a real browser backend. Counters let tests
// assert how often the backend was consulted.
type fakeEngine struct {
	docs      map[string]*html.Node
	location  string
	loadCalls int
	findCalls int
	typed     map[*html.Node]string

	// activateFn overrides click consequences. It returns the resulting
	// document and the location it was served from.
	activateFn func(n *html.Node) (*html.Node, string, error)
}

var _ crawl.Engine = (*fakeEngine)(nil)

func newFakeEngine(t *testing.T, pages map[string]string) *fakeEngine {
	t.Helper()
	f := &fakeEngine{
		docs:  make(map[string]*html.Node),
		typed: make(map[*html.Node]string),
	}
	for rawURL, body := range pages {
		doc, err := html.Parse(strings.NewReader(body))
		require.NoError(t, err)
		f.docs[rawURL] = doc
	}
	return f
}

func (f *fakeEngine) LoadDocument(_ context.Context, rawURL string) (*html.Node, error) {
	f.loadCalls++
	doc, ok := f.docs[rawURL]
	if !ok {
		return nil, fmt.Errorf("no fixture registered for '%s'", rawURL)
	}
	f.location = rawURL
	return doc, nil
}

func (f *fakeEngine) FindByID(root *html.Node, id string) (*html.Node, error) {
	f.findCalls++
	return htmlquery.Query(root, fmt.Sprintf("//*[@id='%s']", id))
}

func (f *fakeEngine) FindByName(root *html.Node, name string) (*html.Node, error) {
	f.findCalls++
	return htmlquery.Query(root, fmt.Sprintf("//*[@name='%s']", name))
}

func (f *fakeEngine) FindByPath(root *html.Node, expr string) ([]*html.Node, error) {
	f.findCalls++
	return htmlquery.QueryAll(root, expr)
}

func (f *fakeEngine) FindAnchorByText(root *html.Node, text string) (*html.Node, error) {
	f.findCalls++
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

func (f *fakeEngine) SetValue(_ context.Context, node *html.Node, value string) error {
	f.typed[node] = value
	return nil
}

func (f *fakeEngine) Activate(_ context.Context, node *html.Node) (*html.Node, error) {
	if f.activateFn != nil {
		doc, loc, err := f.activateFn(node)
		if err != nil {
			return nil, err
		}
		if loc != "" {
			f.location = loc
		}
		return doc, nil
	}
	return f.docs[f.location], nil
}

func (f *fakeEngine) Location() string { return f.location }

// mockEngine is a strict testify mock of the engine contract. With no
// expectations registered, any call fails the test, which makes it the right
// stand-in for asserting the engine is never consulted.
type mockEngine struct {
	mock.Mock
}

var _ crawl.Engine = (*mockEngine)(nil)

func (m *mockEngine) LoadDocument(ctx context.Context, rawURL string) (*html.Node, error) {
	args := m.Called(ctx, rawURL)
	doc, _ := args.Get(0).(*html.Node)
	return doc, args.Error(1)
}

func (m *mockEngine) FindByID(root *html.Node, id string) (*html.Node, error) {
	args := m.Called(root, id)
	n, _ := args.Get(0).(*html.Node)
	return n, args.Error(1)
}

func (m *mockEngine) FindByName(root *html.Node, name string) (*html.Node, error) {
	args := m.Called(root, name)
	n, _ := args.Get(0).(*html.Node)
	return n, args.Error(1)
}

func (m *mockEngine) FindByPath(root *html.Node, expr string) ([]*html.Node, error) {
	args := m.Called(root, expr)
	nodes, _ := args.Get(0).([]*html.Node)
	return nodes, args.Error(1)
}

func (m *mockEngine) FindAnchorByText(root *html.Node, text string) (*html.Node, error) {
	args := m.Called(root, text)
	n, _ := args.Get(0).(*html.Node)
	return n, args.Error(1)
}

func (m *mockEngine) SetValue(ctx context.Context, node *html.Node, value string) error {
	return m.Called(ctx, node, value).Error(0)
}

func (m *mockEngine) Activate(ctx context.Context, node *html.Node) (*html.Node, error) {
	args := m.Called(ctx, node)
	doc, _ := args.Get(0).(*html.Node)
	return doc, args.Error(1)
}

func (m *mockEngine) Location() string {
	return m.Called().String(0)
}

const fixtureURL = "http://fixture.test/"

// newFixtureSession parses body as the document at fixtureURL and returns a
// session that has already navigated to it, leaving the stack empty and the
// document cached.
func newFixtureSession(t *testing.T, body string) (*crawl.Session, *fakeEngine) {
	t.Helper()
	eng := newFakeEngine(t, map[string]string{fixtureURL: body})
	s := crawl.NewSession(eng)
	err := s.NavigateTo(fixtureURL).Do(context.Background(), func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	return s, eng
}

// mustQuery locates an expected node directly in a fixture document.
func mustQuery(t *testing.T, root *html.Node, expr string) *html.Node {
	t.Helper()
	n, err := htmlquery.Query(root, expr)
	require.NoError(t, err)
	require.NotNil(t, n, "fixture is missing %s", expr)
	return n
}
