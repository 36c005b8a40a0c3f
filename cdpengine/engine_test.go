package cdpengine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const fixture = `<html><head></head><body>
<div id="first"><a href="/one">One</a></div>
<div id="second">
  <a href="/two">Two</a>
  <a href="/three">Three</a>
  <form id="login"><input name="user"><textarea name="notes"></textarea></form>
</div>
</body></html>`

func parseFixture(t *testing.T) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	return doc
}

func TestAbsoluteXPathRoundTrips(t *testing.T) {
	doc := parseFixture(t)

	// Every element the DSL could scope must be re-locatable through its
	// absolute path, because that path is what the browser-side click or
	// keystroke is addressed with.
	nodes, err := htmlquery.QueryAll(doc, "//*")
	require.NoError(t, err)
	require.NotEmpty(t, nodes)

	for _, n := range nodes {
		xp, err := absoluteXPath(n)
		require.NoError(t, err)

		found, err := htmlquery.Query(doc, xp)
		require.NoError(t, err, "path %s must be valid", xp)
		assert.Same(t, n, found, "path %s must address its own node", xp)
	}
}

func TestAbsoluteXPathIndexesSiblings(t *testing.T) {
	doc := parseFixture(t)

	second := mustQuery(t, doc, "//div[@id='second']/a[2]")
	xp, err := absoluteXPath(second)
	require.NoError(t, err)
	assert.Equal(t, "/html/body/div[2]/a[2]", xp)

	only := mustQuery(t, doc, "//div[@id='first']/a")
	xp, err = absoluteXPath(only)
	require.NoError(t, err)
	assert.Equal(t, "/html/body/div/a", xp)
}

func TestAbsoluteXPathRejectsNonElements(t *testing.T) {
	doc := parseFixture(t)

	xp, err := absoluteXPath(doc)
	require.NoError(t, err)
	assert.Equal(t, "/", xp)

	text := mustQuery(t, doc, "//div[@id='first']/a").FirstChild
	require.NotNil(t, text)
	_, err = absoluteXPath(text)
	assert.Error(t, err)

	_, err = absoluteXPath(nil)
	assert.Error(t, err)
}

func TestMirrorQueries(t *testing.T) {
	doc := parseFixture(t)
	e := &Engine{mirror: doc}

	form, err := e.FindByID(doc, "login")
	require.NoError(t, err)
	require.NotNil(t, form)
	assert.Equal(t, "form", form.Data)

	user, err := e.FindByName(form, "user")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "input", user.Data)

	anchors, err := e.FindByPath(doc, "//a")
	require.NoError(t, err)
	assert.Len(t, anchors, 3)

	two, err := e.FindAnchorByText(doc, "Two")
	require.NoError(t, err)
	require.NotNil(t, two)
	assert.Equal(t, "/two", htmlquery.SelectAttr(two, "href"))

	missing, err := e.FindByID(doc, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = e.FindByPath(doc, "//a[")
	assert.Error(t, err)
}

func TestMirrorSetValue(t *testing.T) {
	doc := parseFixture(t)

	input := mustQuery(t, doc, "//input[@name='user']")
	mirrorSetValue(input, "alice")
	assert.Equal(t, "alice", htmlquery.SelectAttr(input, "value"))

	// Overwriting replaces rather than duplicating the attribute.
	mirrorSetValue(input, "bob")
	assert.Equal(t, "bob", htmlquery.SelectAttr(input, "value"))
	count := 0
	for _, a := range input.Attr {
		if a.Key == "value" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	area := mustQuery(t, doc, "//textarea[@name='notes']")
	mirrorSetValue(area, "hello")
	assert.Equal(t, "hello", htmlquery.InnerText(area))
	mirrorSetValue(area, "goodbye")
	assert.Equal(t, "goodbye", htmlquery.InnerText(area))
}

func TestPacer(t *testing.T) {
	off := newPacer(false)
	assert.False(t, off.enabled())
	assert.Zero(t, off.keyDelay())

	on := newPacer(true)
	require.True(t, on.enabled())
	for i := 0; i < 50; i++ {
		d := on.keyDelay()
		assert.GreaterOrEqual(t, d, minKeyDelay)
		assert.LessOrEqual(t, d, maxKeyDelay)
	}
	for i := 0; i < 50; i++ {
		d := on.jittered(minActionPause, maxActionPause)
		assert.GreaterOrEqual(t, d, minActionPause)
		assert.LessOrEqual(t, d, maxActionPause)
	}
}

func TestResolveURL(t *testing.T) {
	e := &Engine{}
	_, err := e.resolveURL("/relative")
	assert.Error(t, err, "relative URLs need a current location")

	abs, err := e.resolveURL("http://example.test/a")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/a", abs)

	e.location = "http://example.test/dir/page"
	rel, err := e.resolveURL("next")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/dir/next", rel)
}

func TestActionContextHonorsNavigationTimeout(t *testing.T) {
	e := &Engine{cfg: Config{NavigationTimeout: 10 * time.Millisecond}}
	e.browserCtx = context.Background()

	ctx, cancel := e.actionContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 50*time.Millisecond)
}

func mustQuery(t *testing.T, root *html.Node, expr string) *html.Node {
	t.Helper()
	n, err := htmlquery.Query(root, expr)
	require.NoError(t, err)
	require.NotNil(t, n, "fixture is missing %s", expr)
	return n
}
