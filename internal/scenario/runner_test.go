package scenario_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeyJohnson82/ScCrawler/crawl"
	"github.com/JoeyJohnson82/ScCrawler/htmldom"
	"github.com/JoeyJohnson82/ScCrawler/internal/scenario"
)

func serveHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func TestRunner_LoginAndExtract(t *testing.T) {
	const loginPage = `<html><body>
<form id="login" action="/results" method="post">
  <input type="text" name="user">
  <input type="submit" name="go" value="Sign in">
</form>
</body></html>`
	const resultsPage = `<html><body><ul>
<li><a class="result" href="/a">Alpha</a></li>
<li><a class="result" href="/b">Beta</a></li>
<li><a class="result" href="/c">Gamma</a></li>
</ul></body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, loginPage)
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("user") != "alice" {
			http.Error(w, "bad credentials", http.StatusForbidden)
			return
		}
		serveHTML(w, resultsPage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	doc := `
name: login-and-scrape
start_url: ` + srv.URL + `/login
steps:
  - in: {kind: form, id: login}
    steps:
      - in: {kind: text_field, name: user}
        steps:
          - type: alice
      - in: {kind: submit, name: go}
        steps:
          - click: true
            steps:
              - for_all: {kind: link, path: "//a[@class='result']"}
                steps:
                  - extract: {field: label}
                  - extract: {field: href, attr: href}
`
	sc, err := scenario.Parse([]byte(doc))
	require.NoError(t, err)

	session, _, err := htmldom.NewSession(htmldom.Config{})
	require.NoError(t, err)

	runner := scenario.NewRunner(session, scenario.WithRunID("run-1"))
	batch, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Zero(t, session.Depth(), "stack must be balanced after a run")
	assert.Equal(t, "run-1", batch.RunID)
	assert.Equal(t, "login-and-scrape", batch.Scenario)
	require.Len(t, batch.Records, 6)

	var labels, hrefs []string
	for _, rec := range batch.Records {
		assert.Equal(t, "run-1", rec.RunID)
		assert.Equal(t, srv.URL+"/results", rec.PageURL)
		assert.False(t, rec.Timestamp.IsZero())
		switch rec.Field {
		case "label":
			labels = append(labels, rec.Value)
		case "href":
			hrefs = append(hrefs, rec.Value)
		}
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, labels)
	assert.Equal(t, []string{"/a", "/b", "/c"}, hrefs)
}

func TestRunner_ExposeFeedsThenStatements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body>
<div id="payload" data-rev="7">the goods</div>
</body></html>`)
	}))
	defer srv.Close()

	doc := `
name: expose
start_url: ` + srv.URL + `/
steps:
  - expose: {kind: container, id: payload}
then:
  - on_current_page: true
    steps:
      - extract: {field: body}
      - extract: {field: rev, attr: data-rev}
`
	sc, err := scenario.Parse([]byte(doc))
	require.NoError(t, err)

	session, _, err := htmldom.NewSession(htmldom.Config{})
	require.NoError(t, err)

	batch, err := scenario.NewRunner(session).Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Zero(t, session.Depth(), "on_current_page must retire the exposed scope")
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "body", batch.Records[0].Field)
	assert.Equal(t, "the goods", batch.Records[0].Value)
	assert.Equal(t, "rev", batch.Records[1].Field)
	assert.Equal(t, "7", batch.Records[1].Value)
}

func TestRunner_PartialBatchSurvivesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveHTML(w, `<html><body><h1 id="title">Inventory</h1></body></html>`)
	}))
	defer srv.Close()

	doc := `
name: partial
start_url: ` + srv.URL + `/
steps:
  - extract: {field: title, from: {kind: container, id: title}}
  - in: {kind: form, id: does-not-exist}
`
	sc, err := scenario.Parse([]byte(doc))
	require.NoError(t, err)

	session, _, err := htmldom.NewSession(htmldom.Config{})
	require.NoError(t, err)

	batch, err := scenario.NewRunner(session).Run(context.Background(), sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, crawl.ErrNodeNotFound)

	assert.Zero(t, session.Depth(), "stack must be balanced after a failed run")
	require.Len(t, batch.Records, 1, "records extracted before the failure are kept")
	assert.Equal(t, "Inventory", batch.Records[0].Value)
	assert.False(t, batch.FinishedAt.IsZero())
}
