package htmldom_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
	"github.com/JoeyJohnson82/ScCrawler/htmldom"
)

func newEngine(t *testing.T, cfg htmldom.Config) *htmldom.Engine {
	t.Helper()
	engine, err := htmldom.New(cfg)
	require.NoError(t, err)
	return engine
}

func parseFragment(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func serveHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func TestEngine_LoadSendsPersonaHeaders(t *testing.T) {
	var captured http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		serveHTML(w, `<html><body><h1 id="home">Home</h1></body></html>`)
	}))
	defer srv.Close()

	engine := newEngine(t, htmldom.Config{Persona: schemas.FirefoxPersona})
	doc, err := engine.LoadDocument(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	heading, err := engine.FindByID(doc, "home")
	require.NoError(t, err)
	require.NotNil(t, heading)

	assert.Equal(t, schemas.FirefoxPersona.UserAgent, captured.Get("User-Agent"))
	assert.Equal(t, strings.Join(schemas.FirefoxPersona.Languages, ","), captured.Get("Accept-Language"))
	assert.Contains(t, captured.Get("Accept"), "text/html")
	assert.Equal(t, srv.URL+"/", engine.Location())
}

func TestEngine_RedirectRewritesToGetWithReferer(t *testing.T) {
	var landingMethod, landingReferer string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		landingMethod = r.Method
		landingReferer = r.Header.Get("Referer")
		serveHTML(w, `<html><body><div id="landed">ok</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := newEngine(t, htmldom.Config{})
	doc, err := engine.LoadDocument(context.Background(), srv.URL+"/start")
	require.NoError(t, err)

	landed, err := engine.FindByID(doc, "landed")
	require.NoError(t, err)
	require.NotNil(t, landed)

	assert.Equal(t, http.MethodGet, landingMethod)
	assert.Equal(t, srv.URL+"/start", landingReferer)
	assert.Equal(t, srv.URL+"/landing", engine.Location())
}

func TestEngine_RedirectLoopAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := newEngine(t, htmldom.Config{})
	_, err := engine.LoadDocument(context.Background(), srv.URL+"/loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}

func TestEngine_ClickInsideAnchorNavigates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body><a href="/two"><span id="inner">Onwards</span></a></body></html>`)
	})
	mux.HandleFunc("/two", func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body><h1 id="second">Second</h1></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := newEngine(t, htmldom.Config{})
	doc, err := engine.LoadDocument(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	inner, err := engine.FindByID(doc, "inner")
	require.NoError(t, err)
	require.NotNil(t, inner)

	next, err := engine.Activate(context.Background(), inner)
	require.NoError(t, err)

	second, err := engine.FindByID(next, "second")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, srv.URL+"/two", engine.Location())
}

func TestEngine_SubmitSerializesFormControls(t *testing.T) {
	const page = `<html><body>
<form id="login" action="/login" method="post">
  <input type="text" name="user" value="">
  <input type="password" name="pass">
  <input type="checkbox" name="remember" checked>
  <input type="checkbox" name="spam">
  <input type="text" name="ghost" value="x" disabled>
  <input type="text" value="anonymous">
  <textarea name="notes">hello</textarea>
  <select name="color">
    <option value="red">Red</option>
    <option value="blue" selected>Blue</option>
  </select>
  <input type="submit" id="go" name="action" value="Sign in">
</form>
</body></html>`

	var (
		loginMethod   string
		loginForm     url.Values
		welcomeMethod string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, page)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		loginMethod = r.Method
		require.NoError(t, r.ParseForm())
		loginForm = r.PostForm
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
	})
	mux.HandleFunc("/welcome", func(w http.ResponseWriter, r *http.Request) {
		welcomeMethod = r.Method
		serveHTML(w, `<html><body><h1 id="welcome">Hi</h1></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	engine := newEngine(t, htmldom.Config{})
	doc, err := engine.LoadDocument(ctx, srv.URL+"/")
	require.NoError(t, err)

	user, err := engine.FindByName(doc, "user")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NoError(t, engine.SetValue(ctx, user, "alice"))

	pass, err := engine.FindByName(doc, "pass")
	require.NoError(t, err)
	require.NotNil(t, pass)
	require.NoError(t, engine.SetValue(ctx, pass, "secret"))

	submit, err := engine.FindByID(doc, "go")
	require.NoError(t, err)
	require.NotNil(t, submit)

	result, err := engine.Activate(ctx, submit)
	require.NoError(t, err)

	welcome, err := engine.FindByID(result, "welcome")
	require.NoError(t, err)
	require.NotNil(t, welcome)

	assert.Equal(t, http.MethodPost, loginMethod)
	assert.Equal(t, "alice", loginForm.Get("user"))
	assert.Equal(t, "secret", loginForm.Get("pass"))
	assert.Equal(t, "on", loginForm.Get("remember"))
	assert.Equal(t, "hello", loginForm.Get("notes"))
	assert.Equal(t, "blue", loginForm.Get("color"))
	assert.NotContains(t, loginForm, "spam")
	assert.NotContains(t, loginForm, "ghost")
	assert.NotContains(t, loginForm, "action")

	assert.Equal(t, http.MethodGet, welcomeMethod)
	assert.Equal(t, srv.URL+"/welcome", engine.Location())
}

func TestEngine_FormGetMergesQueryParameters(t *testing.T) {
	const page = `<html><body>
<form id="filter" action="/search?base=1" method="get">
  <input type="text" name="q" value="">
  <input type="submit" id="run" value="Go">
</form>
</body></html>`

	var seen url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, page)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
		serveHTML(w, `<html><body><div id="results"></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	engine := newEngine(t, htmldom.Config{})
	doc, err := engine.LoadDocument(ctx, srv.URL+"/")
	require.NoError(t, err)

	q, err := engine.FindByName(doc, "q")
	require.NoError(t, err)
	require.NotNil(t, q)
	require.NoError(t, engine.SetValue(ctx, q, "golang"))

	run, err := engine.FindByID(doc, "run")
	require.NoError(t, err)
	require.NotNil(t, run)

	result, err := engine.Activate(ctx, run)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "1", seen.Get("base"))
	assert.Equal(t, "golang", seen.Get("q"))
}

func TestEngine_ActivateTogglesCheckState(t *testing.T) {
	const page = `<html><body>
<form id="prefs">
  <input type="checkbox" id="opt" name="opt">
  <input type="radio" id="r1" name="grp" value="one" checked>
  <input type="radio" id="r2" name="grp" value="two">
</form>
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, page)
	}))
	defer srv.Close()

	ctx := context.Background()
	engine := newEngine(t, htmldom.Config{})
	doc, err := engine.LoadDocument(ctx, srv.URL+"/")
	require.NoError(t, err)

	opt, err := engine.FindByID(doc, "opt")
	require.NoError(t, err)
	require.NotNil(t, opt)

	_, err = engine.Activate(ctx, opt)
	require.NoError(t, err)
	assert.True(t, hasAttr(opt, "checked"))

	_, err = engine.Activate(ctx, opt)
	require.NoError(t, err)
	assert.False(t, hasAttr(opt, "checked"))

	r1, err := engine.FindByID(doc, "r1")
	require.NoError(t, err)
	r2, err := engine.FindByID(doc, "r2")
	require.NoError(t, err)

	_, err = engine.Activate(ctx, r2)
	require.NoError(t, err)
	assert.True(t, hasAttr(r2, "checked"))
	assert.False(t, hasAttr(r1, "checked"))
}

func TestEngine_SetValueSemantics(t *testing.T) {
	doc := parseFragment(t, `<html><body>
<input id="name" type="text">
<textarea id="bio">old words</textarea>
<select id="color">
  <option value="red" selected>Red</option>
  <option value="blue">Blue</option>
</select>
<div id="box"></div>
</body></html>`)

	ctx := context.Background()
	engine := newEngine(t, htmldom.Config{})

	field, err := engine.FindByID(doc, "name")
	require.NoError(t, err)
	require.NoError(t, engine.SetValue(ctx, field, "alice"))
	assert.Equal(t, "alice", htmlquery.SelectAttr(field, "value"))

	bio, err := engine.FindByID(doc, "bio")
	require.NoError(t, err)
	require.NoError(t, engine.SetValue(ctx, bio, "new words"))
	assert.Equal(t, "new words", htmlquery.InnerText(bio))

	sel, err := engine.FindByID(doc, "color")
	require.NoError(t, err)
	require.NoError(t, engine.SetValue(ctx, sel, "blue"))
	blue, err := htmlquery.Query(sel, ".//option[@value='blue']")
	require.NoError(t, err)
	assert.True(t, hasAttr(blue, "selected"))
	red, err := htmlquery.Query(sel, ".//option[@value='red']")
	require.NoError(t, err)
	assert.False(t, hasAttr(red, "selected"))

	box, err := engine.FindByID(doc, "box")
	require.NoError(t, err)
	assert.Error(t, engine.SetValue(ctx, box, "nope"))
}

func TestEngine_FindByNameMatchesOnlyControls(t *testing.T) {
	doc := parseFragment(t, `<html><body>
<a name="q" href="/x">named anchor</a>
<input id="field" name="q" type="text">
</body></html>`)

	engine := newEngine(t, htmldom.Config{})
	n, err := engine.FindByName(doc, "q")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "input", n.Data)

	missing, err := engine.FindByName(doc, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEngine_FindAnchorByTextTrimsWhitespace(t *testing.T) {
	doc := parseFragment(t, `<html><body>
<a href="/a">
  Spaced Text
</a>
<a href="/b">Other</a>
</body></html>`)

	engine := newEngine(t, htmldom.Config{})
	a, err := engine.FindAnchorByText(doc, "Spaced Text")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "/a", htmlquery.SelectAttr(a, "href"))

	none, err := engine.FindAnchorByText(doc, "Missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEngine_InlineScripts(t *testing.T) {
	const page = `<html><body>
<script>console.log("hello from page")</script>
<script src="/app.js"></script>
<script>not_a_function();</script>
<div id="content"></div>
</body></html>`

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		serveHTML(w, page)
	}))
	defer srv.Close()

	ctx := context.Background()

	soft := newEngine(t, htmldom.Config{ExecuteScripts: true})
	doc, err := soft.LoadDocument(ctx, srv.URL+"/")
	require.NoError(t, err)
	content, err := soft.FindByID(doc, "content")
	require.NoError(t, err)
	assert.NotNil(t, content)

	hard := newEngine(t, htmldom.Config{ExecuteScripts: true, FailOnScriptError: true})
	_, err = hard.LoadDocument(ctx, srv.URL+"/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page script failed")

	// Scripts with a src attribute are never fetched.
	assert.Equal(t, 2, requests)
}

func TestEngine_NonHTMLContentYieldsEmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	engine := newEngine(t, htmldom.Config{})
	doc, err := engine.LoadDocument(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	require.NotNil(t, doc)

	n, err := engine.FindByID(doc, "anything")
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Equal(t, srv.URL+"/data", engine.Location())
}

func TestEngine_RelativeInitialNavigationFails(t *testing.T) {
	engine := newEngine(t, htmldom.Config{})
	_, err := engine.LoadDocument(context.Background(), "/relative")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute")
}

func TestEngine_EvaluateScript(t *testing.T) {
	engine := newEngine(t, htmldom.Config{Persona: schemas.ChromePersona})

	result, err := engine.Evaluate(context.Background(), "1 + 2")
	require.NoError(t, err)
	assert.EqualValues(t, 3, result)

	agent, err := engine.Evaluate(context.Background(), "navigator.userAgent")
	require.NoError(t, err)
	assert.Equal(t, schemas.ChromePersona.UserAgent, agent)

	_, err = engine.Evaluate(context.Background(), "undefined_symbol()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script exception")
}

func TestEngine_TrafficCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body>hi</body></html>`)
	}))
	defer srv.Close()

	engine := newEngine(t, htmldom.Config{CaptureTraffic: true, CaptureBodies: true})
	_, err := engine.LoadDocument(context.Background(), srv.URL+"/?q=1")
	require.NoError(t, err)

	require.NoError(t, engine.WaitNetworkIdle(context.Background(), 50*time.Millisecond))

	har := engine.HAR()
	require.NotNil(t, har)
	require.Len(t, har.Log.Entries, 1)

	entry := har.Log.Entries[0]
	assert.Equal(t, http.MethodGet, entry.Request.Method)
	assert.Equal(t, srv.URL+"/?q=1", entry.Request.URL)
	assert.Equal(t, []schemas.HARQueryString{{Name: "q", Value: "1"}}, entry.Request.QueryString)
	assert.Equal(t, http.StatusOK, entry.Response.Status)
	assert.Contains(t, entry.Response.Content.Text, "hi")
}
